/*
Package xtable maps Go record types onto database tables and turns record
operations into SQL. You declare a struct, bind it to a table, and read, write,
compose and join rows through typed tables and lazy query sets.

# Overview

A DataSource runs statements against one Provider (a database/sql pool or a
borrowed *sql.Conn). By default it reuses a single connection and serializes
statements on it; Clone gives an independent data source for parallel work.
Statements are built with literal values (see ValueToSQL) in one shape, with
TOP n and a follow-up identity query, and a Dialect rewrites them for the
engine: LIMIT n, INSERT ... RETURNING, quoting and DDL types.

# Mapping rules

  - A field is a column when it carries a `db` tag: `db:""` keeps the field
    name, `db:"Name"` renames the column, `db:"-"` excludes the field.
  - `db:",id"` marks the auto-increment id; `db:",id,noauto"` a manual id.
    `db:",index"` marks the index column used by ByIndex and Like.
  - Untagged exported fields are columns only when the type's RecordConfig
    sets AllFields. Embedded structs are flattened.
  - `join:"one,this=F"` and `join:"many[,this=F][,other=col]"` declare
    associations, filled on demand with FillJoin. A *JoinSet[T] field is a
    deferred to-many set assigned whenever the owner is read.
  - The table name is the type name plus "s" unless the type implements
    TableNamer or RecordConfig.

# Change tracking

Records read or written through a Table come back as *Tracked[T]. With smart
updates on (the default) a Tracked record carries a snapshot of its column
values and Update writes only the columns that changed; when nothing changed
no statement runs. A deleted record is terminal.

# Error handling

  - Single-row reads return sql.ErrNoRows when no row matches.
  - Configuration problems (tags, missing keys, table name clashes) surface
    as the Err* sentinels in this package, wrapped with context.
  - A column value that cannot be converted into its field leaves the zero
    value and logs a warning, or fails with ErrConversion in strict mode.

# Logging

Statements are logged through log/slog: DEBUG for queries and writes, INFO
for DDL, WARN for conversion fallbacks. Statement records carry op, sql and
dialect attributes, plus table for writes and DDL issued against a table.
Reads list the statement text only. Time values are written as UTC.

# Known limitations

Criteria, ordering and field lists are raw SQL fragments passed through as
written. Values are inlined as literals, except in InsertBulk, which binds
parameters through one prepared statement.
*/
package xtable
