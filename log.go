package xtable

import (
	"context"
	"log/slog"
)

// Operation names attached to log records.
const (
	opExec   = "exec"
	opQuery  = "query"
	opScalar = "scalar"
	opInsert = "insert"
	opBatch  = "batch"
	opDDL    = "ddl"
)

// logStatement logs one statement; table is attached when known.
func (s *DataSource) logStatement(ctx context.Context, op, table, query string) {
	level := slog.LevelDebug
	if op == opDDL {
		level = slog.LevelInfo
	}
	if !s.log.Enabled(ctx, level) {
		return
	}
	attrs := []slog.Attr{slog.String("op", op), slog.String("sql", query)}
	if table != "" {
		attrs = append(attrs, slog.String("table", table))
	}
	s.log.LogAttrs(ctx, level, "statement", attrs...)
}

// withTable returns a child logger carrying the table name.
func (s *DataSource) withTable(table string) *slog.Logger {
	return s.log.With(slog.String("table", table))
}
