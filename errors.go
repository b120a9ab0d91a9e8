package xtable

import "errors"

// Configuration errors.
var (
	// ErrNoKey is returned when an operation needs an id or index column and the
	// mapping has neither.
	ErrNoKey = errors.New("xtable: table has no id or index column")

	// ErrTableConflict is returned when two Go types bind to the same table name
	// on one data source.
	ErrTableConflict = errors.New("xtable: table name already bound to another type")

	// ErrNotStruct is returned when a record type is not a struct.
	ErrNotStruct = errors.New("xtable: record type must be a struct")

	// ErrBadTag is returned for a malformed `db` or `join` struct tag.
	ErrBadTag = errors.New("xtable: malformed struct tag")

	// ErrUnknownField is returned when a Go field name does not exist on a record type.
	ErrUnknownField = errors.New("xtable: unknown field")

	// ErrNotRelation is returned when FillJoin targets a field without a `join` tag.
	ErrNotRelation = errors.New("xtable: field is not an association")

	// ErrAmbiguousReciprocal is returned when more than one field of a child type
	// claims the reciprocal to-one side of a to-many association.
	ErrAmbiguousReciprocal = errors.New("xtable: ambiguous reciprocal association")

	// ErrNoDateColumn is returned by date helpers on a table without a time.Time column.
	ErrNoDateColumn = errors.New("xtable: table has no date column")

	// ErrNotTableSet is returned by Clear and Contains on a query set that is
	// not drawn from a single table, such as a join or a projection.
	ErrNotTableSet = errors.New("xtable: query set is not a table set")
)

// State errors.
var (
	// ErrNotConnected is returned when update or delete is requested for a record
	// that was never read from or written to storage.
	ErrNotConnected = errors.New("xtable: record is not connected to storage")

	// ErrDeleted is returned for any write on a record that was already deleted.
	ErrDeleted = errors.New("xtable: record was deleted")

	// ErrManualID is returned when a manual-id insert is requested on an
	// auto-increment table.
	ErrManualID = errors.New("xtable: manual id insert on auto-increment table")

	// ErrClosed is returned when a closed data source is used.
	ErrClosed = errors.New("xtable: data source is closed")

	// ErrCloneUnsupported is returned by Clone on a data source that wraps a
	// caller-owned connection.
	ErrCloneUnsupported = errors.New("xtable: clone not supported on a borrowed connection")
)

// ErrConversion is returned only in strict mode, when a column value cannot be
// coerced into its field type. Outside strict mode the field is left at its
// zero value and a warning is logged.
var ErrConversion = errors.New("xtable: cannot convert column value")
