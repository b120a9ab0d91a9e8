package xtable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
)

// DataSource runs generated statements against one Provider.
//
// In reuse mode (the default) a single connection is opened lazily and shared
// by every statement; statement execution and cursor creation are serialized
// by the data source's mutex. Use Clone to work in parallel. Open cursors are
// tracked until they are disposed, flushed or the data source is closed.
type DataSource struct {
	provider Provider
	dialect  Dialect
	cfg      config
	log      *slog.Logger
	reg      *registry
	clone    bool

	mu      sync.Mutex
	conn    Conn            // reused connection
	readers map[Cursor]Conn // open cursors and the connection each owns, if any
	closed  bool
}

// New returns a data source over p.
//
// Example:
//
//	db, _ := sql.Open("duckdb", "")
//	src := xtable.New(xtable.NewSQLProvider(db, xtable.DuckDB),
//	    xtable.WithLogger(slog.Default()))
//	defer src.Close()
func New(p Provider, opts ...Option) *DataSource {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	d := p.Dialect()
	if d == nil {
		d = SQLServer
	}
	return &DataSource{
		provider: p,
		dialect:  d,
		cfg:      cfg,
		log:      cfg.logger.With(slog.String("dialect", d.Name())),
		reg:      newRegistry(d.Quote),
		readers:  make(map[Cursor]Conn),
	}
}

// Dialect returns the dialect statements are rewritten for.
func (s *DataSource) Dialect() Dialect { return s.dialect }

// MappingOf returns the mapping bound for the record type of v, a T or *T.
func (s *DataSource) MappingOf(v any) (*Mapping, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, fmt.Errorf("%w: nil", ErrNotStruct)
	}
	return s.reg.mapping(t)
}

var (
	intType   = reflect.TypeOf(0)
	int64Type = reflect.TypeOf(int64(0))
)

// ---------------- Connections ----------------

// Open eagerly acquires the reused connection.
func (s *DataSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.cfg.reuse {
		return nil
	}
	_, err := s.reusedLocked(ctx)
	return err
}

func (s *DataSource) reusedLocked(ctx context.Context) (Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	c, err := s.provider.Connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return c, nil
}

// CloseReusedConnection closes the reused connection; the next statement
// opens a new one.
func (s *DataSource) CloseReusedConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// withConn runs fn on a connection: the reused one under the mutex, or a fresh
// one that is closed afterwards.
func (s *DataSource) withConn(ctx context.Context, fn func(Conn) error) (err error) {
	if s.cfg.reuse {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrClosed
		}
		c, err := s.reusedLocked(ctx)
		if err != nil {
			return err
		}
		return fn(c)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c, err := s.provider.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// Close flushes open readers, closes the reused connection and, unless s is a
// clone, closes the provider. Close is idempotent.
func (s *DataSource) Close() error {
	ferr := s.FlushReaders()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ferr
	}
	s.closed = true
	var cerr error
	if s.conn != nil {
		cerr = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	var perr error
	if !s.clone {
		perr = s.provider.Close()
	}
	return errors.Join(ferr, cerr, perr)
}

// Clone returns a data source with its own connection and reader registry that
// shares the provider, options and bound mappings of s.
func (s *DataSource) Clone() (*DataSource, error) {
	if _, ok := s.provider.(*ConnProvider); ok {
		return nil, ErrCloneUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &DataSource{
		provider: s.provider,
		dialect:  s.dialect,
		cfg:      s.cfg,
		log:      s.log,
		reg:      s.reg,
		clone:    true,
		readers:  make(map[Cursor]Conn),
	}, nil
}

// ---------------- Raw execution ----------------

// ExecSQL runs a statement and returns the number of affected rows.
func (s *DataSource) ExecSQL(ctx context.Context, query string) (int64, error) {
	return s.exec(ctx, opExec, "", query)
}

func (s *DataSource) exec(ctx context.Context, op, table, query string) (n int64, err error) {
	query = s.dialect.Rewrite(query)
	s.logStatement(ctx, op, table, query)
	err = s.withConn(ctx, func(c Conn) error {
		n, err = c.Exec(ctx, query)
		return err
	})
	return n, err
}

// ExecScalarValue runs a query and returns the first column of the first row,
// or nil when there is no row.
func (s *DataSource) ExecScalarValue(ctx context.Context, query string) (v any, err error) {
	query = s.dialect.Rewrite(query)
	s.logStatement(ctx, opScalar, "", query)
	err = s.withConn(ctx, func(c Conn) error {
		v, err = c.Scalar(ctx, query)
		return err
	})
	return v, err
}

// ExecScalar runs a query returning one number. NULL and no row yield 0.
func (s *DataSource) ExecScalar(ctx context.Context, query string) (int, error) {
	v, err := s.ExecScalarValue(ctx, query)
	if err != nil || v == nil {
		return 0, err
	}
	n, err := asInt64(v)
	if err != nil {
		return 0, conversionError(v, intType, err)
	}
	return int(n), nil
}

// ExecScalarString runs a query returning one value, rendered as text. NULL
// and no row yield "".
func (s *DataSource) ExecScalarString(ctx context.Context, query string) (string, error) {
	v, err := s.ExecScalarValue(ctx, query)
	if err != nil || v == nil {
		return "", err
	}
	return asString(v), nil
}

// ExecuteReader runs a query and registers its cursor. Release the cursor with
// DisposeReader; FlushReaders and Close release every outstanding one.
func (s *DataSource) ExecuteReader(ctx context.Context, query string) (Cursor, error) {
	query = s.dialect.Rewrite(query)
	s.logStatement(ctx, opQuery, "", query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var (
		c     Conn
		owned Conn
		err   error
	)
	if s.cfg.reuse {
		c, err = s.reusedLocked(ctx)
	} else {
		c, err = s.provider.Connect(ctx)
		owned = c
	}
	if err != nil {
		return nil, err
	}
	cur, err := c.Query(ctx, query)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return nil, err
	}
	s.readers[cur] = owned
	return cur, nil
}

// DisposeReader closes a cursor returned by ExecuteReader and the connection
// opened for it. Disposing an unknown or already disposed cursor is a no-op.
func (s *DataSource) DisposeReader(cur Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.readers[cur]
	if !ok {
		return nil
	}
	delete(s.readers, cur)
	err := cur.Close()
	if owned != nil {
		err = errors.Join(err, owned.Close())
	}
	return err
}

// FlushReaders closes every outstanding cursor and its connection.
func (s *DataSource) FlushReaders() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for cur, owned := range s.readers {
		errs = append(errs, cur.Close())
		if owned != nil {
			errs = append(errs, owned.Close())
		}
	}
	clear(s.readers)
	return errors.Join(errs...)
}

// openReaders reports the number of registered cursors.
func (s *DataSource) openReaders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readers)
}

// ---------------- Statement helpers ----------------

// Insert writes one row built from literal values. When idColumn is non-empty
// Insert returns the generated id, through RETURNING or a follow-up identity
// query on the same connection; otherwise it returns 0.
func (s *DataSource) Insert(ctx context.Context, table string, fields []string, values []any, idColumn string) (int64, error) {
	stmt, err := buildInsert(table, fields, values)
	if err != nil {
		return 0, err
	}
	query := s.dialect.Rewrite(stmt)
	if idColumn == "" {
		s.logStatement(ctx, opInsert, table, query)
		err = s.withConn(ctx, func(c Conn) error {
			_, err := c.Exec(ctx, query)
			return err
		})
		return 0, err
	}

	identity, returning := s.dialect.Identity(query, idColumn)
	var raw any
	err = s.withConn(ctx, func(c Conn) error {
		var err error
		if returning {
			s.logStatement(ctx, opInsert, table, identity)
			raw, err = c.Scalar(ctx, identity)
			return err
		}
		s.logStatement(ctx, opInsert, table, query)
		if _, err = c.Exec(ctx, query); err != nil {
			return err
		}
		s.logStatement(ctx, opScalar, table, identity)
		raw, err = c.Scalar(ctx, identity)
		return err
	})
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, fmt.Errorf("xtable: %s: no identity returned", table)
	}
	id, err := asInt64(raw)
	if err != nil {
		return 0, conversionError(raw, int64Type, err)
	}
	return id, nil
}

// insertBatch prepares one parameterized INSERT and runs it per row.
func (s *DataSource) insertBatch(ctx context.Context, table string, fields []string, rows [][]any) error {
	query := buildInsertParams(table, fields, s.dialect.Placeholder())
	s.logStatement(ctx, opBatch, table, query)
	return s.withConn(ctx, func(c Conn) error {
		return c.ExecBatch(ctx, query, rows)
	})
}

// Update sets fields to values on the rows where key equals keyValue.
func (s *DataSource) Update(ctx context.Context, table, key string, keyValue any, fields []string, values []any) (int64, error) {
	if len(fields) != len(values) {
		return 0, fmt.Errorf("xtable: update %s: %d fields, %d values", table, len(fields), len(values))
	}
	query, err := buildUpdate(table, key, keyValue, fields, values)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, opExec, table, query)
}

// Delete removes the rows where field equals value and reports whether any
// row was affected.
func (s *DataSource) Delete(ctx context.Context, table, field string, value any) (bool, error) {
	n, err := s.exec(ctx, opExec, table, buildDelete(table, field+"="+ValueToSQL(value)))
	return n > 0, err
}

// DeleteWhere removes the rows matching criteria.
func (s *DataSource) DeleteWhere(ctx context.Context, table, where string) (bool, error) {
	n, err := s.exec(ctx, opExec, table, buildDelete(table, where))
	return n > 0, err
}

// TableNames lists the base tables of the database.
func (s *DataSource) TableNames(ctx context.Context) (out []string, err error) {
	cur, err := s.ExecuteReader(ctx, s.dialect.TablesQuery())
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.DisposeReader(cur); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for cur.Next() {
		var name sql.NullString
		if err := cur.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name.String)
	}
	return out, cur.Err()
}

func (s *DataSource) hasTable(ctx context.Context, table string) (bool, error) {
	names, err := s.TableNames(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, table) {
			return true, nil
		}
	}
	return false, nil
}
