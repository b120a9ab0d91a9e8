// Package duckdbsource opens xtable data sources backed by DuckDB.
package duckdbsource

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/go-mizu/xtable"
)

// Open opens the DuckDB database at path ("" for an in-memory database) and
// returns a data source using the DuckDB dialect. The data source owns the
// pool; closing it closes the database.
//
// Example:
//
//	src, err := duckdbsource.Open("shop.duckdb", xtable.WithLogger(logger))
//	if err != nil { ... }
//	defer src.Close()
func Open(path string, opts ...xtable.Option) (*xtable.DataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duckdbsource: open %q: %w", path, err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("duckdbsource: open %q: %w", path, err)
	}
	return xtable.New(xtable.NewSQLProvider(db, xtable.DuckDB), opts...), nil
}
