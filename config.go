package xtable

import "log/slog"

// Option configures a DataSource.
type Option func(*config)

type config struct {
	reuse  bool
	smart  bool
	strict bool
	logger *slog.Logger
}

func defaultConfig() config {
	return config{
		reuse: true,
		smart: true,
	}
}

// WithReuseConnection keeps one connection open for every statement (default
// true). A reused connection serializes work; use Clone for parallelism.
// With reuse off, every statement and every open cursor gets its own connection.
func WithReuseConnection(on bool) Option {
	return func(c *config) { c.reuse = on }
}

// WithSmartUpdates toggles change tracking (default true). When off, records
// carry no snapshot and every update writes all columns.
func WithSmartUpdates(on bool) Option {
	return func(c *config) { c.smart = on }
}

// WithStrictConversions makes a column value that cannot be converted into its
// field type fail the read with ErrConversion instead of leaving the zero value.
func WithStrictConversions(on bool) Option {
	return func(c *config) { c.strict = on }
}

// WithLogger sets the logger. Statements are logged at DEBUG, DDL at INFO and
// conversion fallbacks at WARN. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
