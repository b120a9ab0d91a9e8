package xtable

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Dialect adapts generated SQL to one backend. Statements are always built in
// the SQL Server shape (TOP n, a follow-up identity query); a dialect rewrites
// what its engine does not understand.
type Dialect interface {
	Name() string
	// Quote quotes an identifier (used for renamed columns).
	Quote(ident string) string
	// Rewrite adapts a finished statement, e.g. TOP n into LIMIT n.
	Rewrite(query string) string
	// Identity returns the statement that yields the id generated by insertSQL.
	// When returning is true the statement replaces insertSQL; otherwise it runs
	// after insertSQL on the same connection.
	Identity(insertSQL, idColumn string) (query string, returning bool)
	// Placeholder is the positional parameter style used by bulk inserts.
	Placeholder() Placeholder
	// ColumnType maps a Go field type to a DDL column type.
	ColumnType(t reflect.Type) string
	// IdentityColumn returns the DDL suffix of an auto-increment id column and
	// any statements that must run before CREATE TABLE.
	IdentityColumn(table string) (suffix string, before []string)
	NotNull() string
	// DateLiteral renders a date (no time of day) for comparisons in criteria.
	DateLiteral(t time.Time) string
	// TablesQuery lists base table names, one per row.
	TablesQuery() string
}

// SQLDialect is a table-driven Dialect. The exported dialect values cover the
// engines this package is tested against; copy one to adjust it.
type SQLDialect struct {
	DialectName string
	QuoteOpen   string
	QuoteClose  string
	Limit       bool   // rewrite TOP n into a trailing LIMIT n
	Returning   bool   // identity through INSERT ... RETURNING
	IdentitySQL string // follow-up identity query when !Returning
	Params      Placeholder
	Types       map[string]string
	IdentityDDL string
	Sequences   bool // identity through a per-table sequence
	NotNullDDL  string
	DateValue   bool // wrap date literals in DATEVALUE(...)
	Catalog     string
}

func (d *SQLDialect) Name() string { return d.DialectName }

func (d *SQLDialect) Quote(ident string) string { return d.QuoteOpen + ident + d.QuoteClose }

func (d *SQLDialect) Rewrite(query string) string {
	if !d.Limit {
		return query
	}
	stmt, n, ok := splitTop(query)
	if !ok {
		return query
	}
	return trimStatement(stmt) + " LIMIT " + strconv.Itoa(n) + ";"
}

func (d *SQLDialect) Identity(insertSQL, idColumn string) (string, bool) {
	if d.Returning {
		return trimStatement(insertSQL) + " RETURNING " + unqualified(idColumn) + ";", true
	}
	return d.IdentitySQL, false
}

func (d *SQLDialect) Placeholder() Placeholder { return d.Params }

func (d *SQLDialect) ColumnType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := d.Types[typeCategory(t)]; ok {
		return s
	}
	return d.Types["text"]
}

func (d *SQLDialect) IdentityColumn(table string) (string, []string) {
	if !d.Sequences {
		return d.IdentityDDL, nil
	}
	seq := "seq_" + strings.ToLower(table)
	return " PRIMARY KEY DEFAULT nextval('" + seq + "')",
		[]string{"CREATE SEQUENCE IF NOT EXISTS " + seq + " START 1;"}
}

func (d *SQLDialect) NotNull() string { return d.NotNullDDL }

func (d *SQLDialect) DateLiteral(t time.Time) string {
	s := "'" + t.Format("2006-01-02") + "'"
	if d.DateValue {
		return "DATEVALUE(" + s + ")"
	}
	return s
}

func (d *SQLDialect) TablesQuery() string { return d.Catalog }

const informationSchemaTables = "SELECT table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE';"

var (
	// SQLServer is the default dialect: TOP n, [quoted] names, @@IDENTITY.
	SQLServer Dialect = &SQLDialect{
		DialectName: "sqlserver",
		QuoteOpen:   "[", QuoteClose: "]",
		IdentitySQL: "SELECT @@IDENTITY;",
		Params:      PlaceholderAtP,
		Types: map[string]string{
			"string": "nvarchar(100)", "int": "int", "bigint": "bigint", "smallint": "smallint",
			"byte": "tinyint", "float": "real", "double": "float", "bool": "bit",
			"time": "datetime", "decimal": "decimal", "bytes": "varbinary(max)", "text": "ntext",
		},
		IdentityDDL: " PRIMARY KEY IDENTITY",
		NotNullDDL:  " NOT NULL",
		Catalog:     informationSchemaTables,
	}

	// Access speaks the SQL Server shape but compares dates through DATEVALUE.
	Access Dialect = &SQLDialect{
		DialectName: "access",
		QuoteOpen:   "[", QuoteClose: "]",
		IdentitySQL: "SELECT @@IDENTITY;",
		Params:      PlaceholderQuestion,
		Types: map[string]string{
			"string": "varchar(100)", "int": "int", "bigint": "bigint", "smallint": "smallint",
			"byte": "tinyint", "float": "single", "double": "double", "bool": "bit",
			"time": "datetime", "decimal": "decimal", "bytes": "longbinary", "text": "text",
		},
		IdentityDDL: " IDENTITY PRIMARY KEY",
		NotNullDDL:  " NOT NULL",
		DateValue:   true,
		Catalog:     "SELECT Name FROM MSysObjects WHERE Type = 1 AND Flags = 0;",
	}

	// MySQL uses LIMIT, `quoted` names and LAST_INSERT_ID().
	MySQL Dialect = &SQLDialect{
		DialectName: "mysql",
		QuoteOpen:   "`", QuoteClose: "`",
		Limit:       true,
		IdentitySQL: "SELECT LAST_INSERT_ID();",
		Params:      PlaceholderQuestion,
		Types: map[string]string{
			"string": "varchar(100)", "int": "int", "bigint": "bigint", "smallint": "smallint",
			"byte": "tinyint", "float": "float", "double": "double", "bool": "tinyint(1)",
			"time": "datetime", "decimal": "decimal(18,4)", "bytes": "blob", "text": "text",
		},
		IdentityDDL: " PRIMARY KEY AUTO_INCREMENT",
		NotNullDDL:  " NOT NULL",
		Catalog:     "SELECT table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema = DATABASE();",
	}

	// SQLite uses LIMIT and last_insert_rowid().
	SQLite Dialect = &SQLDialect{
		DialectName: "sqlite",
		QuoteOpen:   `"`, QuoteClose: `"`,
		Limit:       true,
		IdentitySQL: "SELECT last_insert_rowid();",
		Params:      PlaceholderQuestion,
		Types: map[string]string{
			"string": "text", "int": "integer", "bigint": "integer", "smallint": "integer",
			"byte": "integer", "float": "real", "double": "real", "bool": "integer",
			"time": "datetime", "decimal": "numeric", "bytes": "blob", "text": "text",
		},
		IdentityDDL: " PRIMARY KEY AUTOINCREMENT",
		NotNullDDL:  " NOT NULL",
		Catalog:     "SELECT name FROM sqlite_master WHERE type = 'table';",
	}

	// DuckDB uses LIMIT, RETURNING and a sequence per auto-increment table.
	DuckDB Dialect = &SQLDialect{
		DialectName: "duckdb",
		QuoteOpen:   `"`, QuoteClose: `"`,
		Limit:       true,
		Returning:   true,
		Params:      PlaceholderQuestion,
		Types: map[string]string{
			"string": "VARCHAR", "int": "INTEGER", "bigint": "BIGINT", "smallint": "SMALLINT",
			"byte": "UTINYINT", "float": "FLOAT", "double": "DOUBLE", "bool": "BOOLEAN",
			"time": "TIMESTAMP", "decimal": "DECIMAL(18,4)", "bytes": "BLOB", "text": "VARCHAR",
		},
		Sequences:  true,
		NotNullDDL: " NOT NULL",
		Catalog:    informationSchemaTables,
	}

	// Postgres uses LIMIT, RETURNING and identity columns.
	Postgres Dialect = &SQLDialect{
		DialectName: "postgres",
		QuoteOpen:   `"`, QuoteClose: `"`,
		Limit:       true,
		Returning:   true,
		Params:      PlaceholderDollar,
		Types: map[string]string{
			"string": "varchar(100)", "int": "integer", "bigint": "bigint", "smallint": "smallint",
			"byte": "smallint", "float": "real", "double": "double precision", "bool": "boolean",
			"time": "timestamp", "decimal": "numeric", "bytes": "bytea", "text": "text",
		},
		IdentityDDL: " GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
		NotNullDDL:  " NOT NULL",
		Catalog:     "SELECT table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema = current_schema();",
	}
)

// DialectFor picks a Dialect based on a database/sql driver name.
//
// Examples:
//
//	d := xtable.DialectFor("duckdb")    // => DuckDB
//	d := xtable.DialectFor("mysql")     // => MySQL
//	d := xtable.DialectFor("sqlserver") // => SQLServer
func DialectFor(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "lib/pq", "pg":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	case "duckdb":
		return DuckDB
	case "access", "oledb", "odbc":
		return Access
	default:
		return SQLServer
	}
}

var timeType = reflect.TypeOf(time.Time{})

func typeCategory(t reflect.Type) string {
	if t == timeType {
		return "time"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int8, reflect.Int16, reflect.Uint16:
		return "smallint"
	case reflect.Uint8:
		return "byte"
	case reflect.Int32, reflect.Int:
		return "int"
	case reflect.Int64, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return "bigint"
	case reflect.Float32:
		return "float"
	case reflect.Float64:
		return "double"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytes"
		}
	}
	return "text"
}

// unqualified strips a "Table." prefix and identifier quotes from a column name.
func unqualified(col string) string {
	if i := qualifierEnd(col); i >= 0 {
		col = col[i+1:]
	} else if i := strings.LastIndexByte(col, '.'); i >= 0 {
		col = col[i+1:]
	}
	return unquote(col)
}

// qualifierEnd returns the index of the '.' that separates a table qualifier
// from a quoted column, or -1.
func qualifierEnd(col string) int {
	for _, open := range []string{".[", `."`, ".`"} {
		if i := strings.Index(col, open); i >= 0 {
			return i
		}
	}
	return -1
}

func unquote(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				return s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				return s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				return s[1 : l-1]
			}
		}
	}
	return s
}
