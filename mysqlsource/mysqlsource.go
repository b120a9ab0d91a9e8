// Package mysqlsource opens xtable data sources backed by MySQL through
// github.com/go-sql-driver/mysql and classifies MySQL server errors.
package mysqlsource

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/go-mizu/xtable"
)

// MySQL server error numbers.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied     = 1044
	errDuplicateEntry     = 1062
	errNoSuchTable        = 1146
	errTableAccessDenied  = 1142
	errColumnAccessDenied = 1143
)

// Open returns a data source over cfg using the MySQL dialect. cfg is copied
// and ParseTime is forced on so DATETIME columns read back as time.Time.
// No connection is made until the first statement.
func Open(cfg *mysql.Config, opts ...xtable.Option) (*xtable.DataSource, error) {
	c := cfg.Clone()
	c.ParseTime = true
	connector, err := mysql.NewConnector(c)
	if err != nil {
		return nil, fmt.Errorf("mysqlsource: %w", err)
	}
	return xtable.New(xtable.NewSQLProvider(sql.OpenDB(connector), xtable.MySQL), opts...), nil
}

// OpenDSN parses a driver DSN such as "user:pw@tcp(127.0.0.1:3306)/shop" and
// calls Open.
func OpenDSN(dsn string, opts ...xtable.Option) (*xtable.DataSource, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlsource: %w", err)
	}
	return Open(cfg, opts...)
}

// IsDuplicateEntry reports whether err is a unique or primary key violation.
func IsDuplicateEntry(err error) bool { return hasNumber(err, errDuplicateEntry) }

// IsNoSuchTable reports whether err says the table does not exist.
func IsNoSuchTable(err error) bool { return hasNumber(err, errNoSuchTable) }

// IsAccessDenied reports whether err is a database, table or column privilege error.
func IsAccessDenied(err error) bool {
	return hasNumber(err, errDBAccessDenied, errTableAccessDenied, errColumnAccessDenied)
}

func hasNumber(err error, numbers ...uint16) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, n := range numbers {
		if me.Number == n {
			return true
		}
	}
	return false
}
