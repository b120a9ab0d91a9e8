package xtable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLProvider connects through a database/sql pool. Every Connect checks out a
// dedicated *sql.Conn, so a data source that reuses its connection really does
// run on one physical connection.
type SQLProvider struct {
	DB      *sql.DB
	dialect Dialect
}

// NewSQLProvider returns a provider over db. A nil dialect selects SQLServer.
func NewSQLProvider(db *sql.DB, d Dialect) *SQLProvider {
	if d == nil {
		d = SQLServer
	}
	return &SQLProvider{DB: db, dialect: d}
}

func (p *SQLProvider) Connect(ctx context.Context) (Conn, error) {
	c, err := p.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{c: c, close: c.Close}, nil
}

func (p *SQLProvider) Dialect() Dialect { return p.dialect }

func (p *SQLProvider) Close() error { return p.DB.Close() }

// ConnProvider hands out a caller-owned *sql.Conn. Closing the returned Conn
// is a no-op; the caller closes the underlying connection.
type ConnProvider struct {
	C       *sql.Conn
	dialect Dialect
}

// NewConnProvider returns a provider that always yields c.
func NewConnProvider(c *sql.Conn, d Dialect) *ConnProvider {
	if d == nil {
		d = SQLServer
	}
	return &ConnProvider{C: c, dialect: d}
}

func (p *ConnProvider) Connect(context.Context) (Conn, error) {
	return &sqlConn{c: p.C, close: func() error { return nil }}, nil
}

func (p *ConnProvider) Dialect() Dialect { return p.dialect }

func (p *ConnProvider) Close() error { return nil }

type sqlHandle interface {
	Querier
	Execer
	Preparer
}

type sqlConn struct {
	c     sqlHandle
	close func() error
}

func (c *sqlConn) Exec(ctx context.Context, query string) (int64, error) {
	res, err := c.c.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows; the statement itself succeeded.
		return 0, nil
	}
	return n, nil
}

func (c *sqlConn) Scalar(ctx context.Context, query string) (v any, err error) {
	rows, err := c.c.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if !rows.Next() {
		return nil, rows.Err()
	}
	if err := rows.Scan(&v); err != nil {
		return nil, err
	}
	return v, rows.Err()
}

func (c *sqlConn) Query(ctx context.Context, query string) (Cursor, error) {
	return c.c.QueryContext(ctx, query)
}

func (c *sqlConn) ExecBatch(ctx context.Context, query string, rows [][]any) (err error) {
	stmt, err := c.c.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for i, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("xtable: batch row %d: %w", i, err)
		}
	}
	return nil
}

func (c *sqlConn) Close() error {
	if c.close == nil {
		return errors.New("xtable: connection already closed")
	}
	err := c.close()
	c.close = nil
	return err
}
