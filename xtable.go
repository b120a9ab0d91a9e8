package xtable

import (
	"context"
	"database/sql"
)

// Querier is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a query returning rows.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a statement that does not return rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Preparer is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Cursor is a forward-only row cursor. *sql.Rows implements it.
type Cursor interface {
	Next() bool
	Columns() ([]string, error)
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Conn is one physical connection to a backend. A Conn runs one statement at a
// time; the data source serializes access when it reuses a single Conn.
type Conn interface {
	// Exec runs a statement and reports the number of affected rows.
	Exec(ctx context.Context, query string) (int64, error)
	// Scalar runs a query and returns the first column of the first row, or nil.
	Scalar(ctx context.Context, query string) (any, error)
	// Query runs a query and returns an open cursor.
	Query(ctx context.Context, query string) (Cursor, error)
	// ExecBatch prepares query once and executes it for each argument row.
	ExecBatch(ctx context.Context, query string, rows [][]any) error
	Close() error
}

// Provider opens connections to one backend and names its SQL dialect.
// One Provider is selected when a DataSource is constructed; the core never
// inspects the concrete backend type.
type Provider interface {
	Connect(ctx context.Context) (Conn, error)
	Dialect() Dialect
	Close() error
}
