package xtable

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// fakeDB is an in-memory database/sql driver. Queries are answered from
// canned responses matched by statement prefix; every statement is logged.
type fakeDB struct {
	mu        sync.Mutex
	stmts     []string
	args      [][]driver.NamedValue
	responses []fakeResponse
	affected  int64
	connects  int
}

type fakeResponse struct {
	prefix string
	cols   []string
	rows   [][]driver.Value
	err    error
}

func newFakeDB() *fakeDB { return &fakeDB{affected: 1} }

// on answers statements starting with prefix. Later registrations win.
func (f *fakeDB) on(prefix string, cols []string, rows ...[]driver.Value) *fakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, cols: cols, rows: rows})
	return f
}

// fail makes statements starting with prefix return err.
func (f *fakeDB) fail(prefix string, err error) *fakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, err: err})
	return f
}

func (f *fakeDB) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stmts...)
}

func (f *fakeDB) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts, f.args = nil, nil
}

func (f *fakeDB) record(q string, args []driver.NamedValue) fakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, q)
	f.args = append(f.args, args)
	for i := len(f.responses) - 1; i >= 0; i-- {
		if strings.HasPrefix(q, f.responses[i].prefix) {
			return f.responses[i]
		}
	}
	return fakeResponse{}
}

type fakeConnector struct{ f *fakeDB }

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	c.f.mu.Lock()
	c.f.connects++
	c.f.mu.Unlock()
	return &fakeConn{f: c.f}, nil
}
func (c *fakeConnector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fakeDriver.Open should not be called; use sql.OpenDB with connector")
}

type fakeConn struct{ f *fakeDB }

func (c *fakeConn) Prepare(q string) (driver.Stmt, error) { return &fakeStmt{f: c.f, q: q}, nil }
func (c *fakeConn) Close() error                          { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)             { return nil, driver.ErrSkip }

func (c *fakeConn) QueryContext(_ context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	r := c.f.record(q, args)
	if r.err != nil {
		return nil, r.err
	}
	return &fakeRows{cols: r.cols, data: r.rows}, nil
}

func (c *fakeConn) ExecContext(_ context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	r := c.f.record(q, args)
	if r.err != nil {
		return nil, r.err
	}
	return fakeResult(c.f.affected), nil
}

type fakeStmt struct {
	f *fakeDB
	q string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, errors.New("fakeStmt.Exec should not be called; ExecContext is implemented")
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, errors.New("fakeStmt.Query should not be called")
}

func (s *fakeStmt) ExecContext(_ context.Context, args []driver.NamedValue) (driver.Result, error) {
	r := s.f.record(s.q, args)
	if r.err != nil {
		return nil, r.err
	}
	return fakeResult(s.f.affected), nil
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *fakeRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newFakeSource returns a SQL Server data source over f, closed with the test.
func newFakeSource(t *testing.T, f *fakeDB, opts ...Option) *DataSource {
	t.Helper()
	return newFakeSourceDialect(t, f, SQLServer, opts...)
}

func newFakeSourceDialect(t *testing.T, f *fakeDB, d Dialect, opts ...Option) *DataSource {
	t.Helper()
	db := sql.OpenDB(&fakeConnector{f: f})
	src := New(NewSQLProvider(db, d), append([]Option{WithLogger(quietLogger)}, opts...)...)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

// captureLogger returns a logger writing text records into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func row(vals ...driver.Value) []driver.Value { return vals }
