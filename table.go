package xtable

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
)

// Table gives typed access to the table that record type T is bound to.
// Tables are cheap; the mapping behind them is cached by the data source.
type Table[T any] struct {
	src *DataSource
	m   *Mapping
}

// TableOf binds T on src and returns its table.
//
// Example:
//
//	type Customer struct {
//	    ID      int    `db:",id"`
//	    Name    string `db:"CustomerName,index"`
//	    ZipCode int    `db:""`
//	}
//
//	customers, err := xtable.TableOf[Customer](src)
//	jerome, err := customers.ByIndex(ctx, "Jerome")
//	jerome.Record.ZipCode++
//	err = jerome.Update(ctx) // UPDATE Customers SET ZipCode = 1001 WHERE ID=7;
func TableOf[T any](src *DataSource) (*Table[T], error) {
	m, err := src.reg.mapping(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return &Table[T]{src: src, m: m}, nil
}

// Mapping returns the table's mapping.
func (t *Table[T]) Mapping() *Mapping { return t.m }

// Name returns the table name.
func (t *Table[T]) Name() string { return t.m.Table }

// Source returns the data source the table runs on.
func (t *Table[T]) Source() *DataSource { return t.src }

// New wraps a record that is not stored yet.
func (t *Table[T]) New(rec *T) *Tracked[T] {
	return &Tracked[T]{Record: rec, State: StateNew, table: t}
}

// Attach wraps a record known to be stored, without a snapshot: its first
// update writes every column.
func (t *Table[T]) Attach(rec *T) *Tracked[T] {
	r := &Tracked[T]{Record: rec, State: StateConnected, table: t}
	if t.m.ID == nil && t.m.Index != nil {
		r.indexCopy = snapshotValue(reflect.ValueOf(rec).Elem(), t.m.Index)
	}
	return r
}

// decode materializes one row into a tracked record.
func (t *Table[T]) decode(values []any) (*Tracked[T], error) {
	return t.decodeAt(values, 0)
}

func (t *Table[T]) decodeAt(values []any, start int) (*Tracked[T], error) {
	rec, err := t.src.materialize(t.m, values, start)
	if err != nil {
		return nil, err
	}
	if err := t.src.instantiateSets(t.m, rec); err != nil {
		return nil, err
	}
	r := &Tracked[T]{Record: rec.Interface().(*T), table: t}
	r.connect()
	return r, nil
}

// ---------------- Reads ----------------

// Get reads the row with the given id. It returns sql.ErrNoRows when there is none.
func (t *Table[T]) Get(ctx context.Context, id any) (*Tracked[T], error) {
	if t.m.ID == nil {
		return nil, fmt.Errorf("%w: %s has no id column", ErrNoKey, t.m.Table)
	}
	return t.first(ctx, t.m.ID.Name+" = "+ValueToSQL(id), "")
}

// ByIndex reads the row whose index column equals v.
func (t *Table[T]) ByIndex(ctx context.Context, v any) (*Tracked[T], error) {
	if t.m.Index == nil {
		return nil, fmt.Errorf("%w: %s has no index column", ErrNoKey, t.m.Table)
	}
	return t.first(ctx, t.m.Index.Name+" = "+ValueToSQL(v), "")
}

// SetByIndex stores rec under index value v: a connected record is written in
// full to the row whose index is v, anything else is inserted.
func (t *Table[T]) SetByIndex(ctx context.Context, v any, rec *Tracked[T]) error {
	if t.m.Index == nil {
		return fmt.Errorf("%w: %s has no index column", ErrNoKey, t.m.Table)
	}
	if rec.State == StateDeleted {
		return ErrDeleted
	}
	if rec.State == StateNew {
		return t.insert(ctx, rec)
	}
	names, values := t.columnValues(reflect.ValueOf(rec.Record).Elem())
	if _, err := t.src.Update(ctx, t.m.Table, t.m.Index.Name, v, names, values); err != nil {
		return err
	}
	rec.connect()
	return nil
}

// SelectFirst reads the first row matching criteria, or sql.ErrNoRows.
func (t *Table[T]) SelectFirst(ctx context.Context, criteria string) (*Tracked[T], error) {
	return t.first(ctx, criteria, "")
}

func (t *Table[T]) first(ctx context.Context, criteria, orderBy string) (*Tracked[T], error) {
	list, err := t.SelectList(ctx, 1, criteria, orderBy)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return list[0], nil
}

// ---------------- Writes ----------------

// Insert writes rec as a new row and returns it tracked. On an auto-increment
// table the generated id is stored into the record; on a manual-id table the
// record's own id is written.
func (t *Table[T]) Insert(ctx context.Context, rec *T) (*Tracked[T], error) {
	r := t.New(rec)
	if err := t.insert(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// InsertWithID writes rec with the id it carries. It fails with ErrManualID on
// an auto-increment table and ErrNoKey on a table without an id.
func (t *Table[T]) InsertWithID(ctx context.Context, rec *T) (*Tracked[T], error) {
	if t.m.ID == nil {
		return nil, fmt.Errorf("%w: %s has no id column", ErrNoKey, t.m.Table)
	}
	if t.m.AutoIncrement {
		return nil, fmt.Errorf("%w: %s", ErrManualID, t.m.Table)
	}
	return t.Insert(ctx, rec)
}

func (t *Table[T]) insert(ctx context.Context, r *Tracked[T]) error {
	root := reflect.ValueOf(r.Record).Elem()
	if t.m.ID != nil && !t.m.AutoIncrement {
		return t.insertManual(ctx, r, root)
	}

	names, values := t.columnValues(root)
	idColumn := ""
	if t.m.ID != nil {
		idColumn = t.m.ID.bare
	}
	id, err := t.src.Insert(ctx, t.m.Table, names, values, idColumn)
	if err != nil {
		return err
	}
	if t.m.ID != nil {
		if err := assign(fieldAt(root, t.m.ID.Index), id); err != nil {
			return err
		}
	}
	r.connect()
	return nil
}

// insertManual writes the id first. With smart updates on, zero-valued
// columns are left to the database defaults.
func (t *Table[T]) insertManual(ctx context.Context, r *Tracked[T], root reflect.Value) error {
	names := []string{t.m.ID.bare}
	values := []any{valueOf(root, t.m.ID)}
	for _, c := range t.m.Columns {
		v, ok := fieldValue(root, c.Index)
		if !ok || (t.src.cfg.smart && v.IsZero()) {
			continue
		}
		names = append(names, c.bare)
		values = append(values, v.Interface())
	}
	if _, err := t.src.Insert(ctx, t.m.Table, names, values, ""); err != nil {
		return err
	}
	r.connect()
	return nil
}

// InsertBulk writes many records through one prepared statement. Generated
// ids are not read back and the records are not tracked.
func (t *Table[T]) InsertBulk(ctx context.Context, recs []*T) error {
	if len(recs) == 0 {
		return nil
	}
	var names []string
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		n, values := t.columnValues(reflect.ValueOf(rec).Elem())
		if i == 0 {
			names = n
		}
		for j, v := range values {
			values[j] = bulkArg(v)
		}
		rows[i] = values
	}
	return t.src.insertBatch(ctx, t.m.Table, names, rows)
}

// bulkArg unwraps named types and pointers into driver-friendly values.
func bulkArg(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return bulkArg(rv.Elem().Interface())
	}
	return v
}

// columnValues returns the insert/set names and current values of every non-id column.
func (t *Table[T]) columnValues(root reflect.Value) ([]string, []any) {
	names := make([]string, 0, len(t.m.Columns))
	values := make([]any, 0, len(t.m.Columns))
	for _, c := range t.m.Columns {
		names = append(names, c.bare)
		values = append(values, valueOf(root, c))
	}
	return names, values
}

// Update writes the changed columns of a tracked record.
func (t *Table[T]) Update(ctx context.Context, r *Tracked[T]) error {
	return r.Update(ctx)
}

func (t *Table[T]) update(ctx context.Context, r *Tracked[T]) error {
	key, err := t.m.key()
	if err != nil {
		return err
	}
	root := reflect.ValueOf(r.Record).Elem()
	var (
		names  []string
		values []any
	)
	for _, c := range t.m.Columns {
		if t.src.cfg.smart && r.Snapshot != nil {
			if prev, ok := r.Snapshot[c.Name]; ok && sameValue(prev, snapshotValue(root, c)) {
				continue
			}
		}
		names = append(names, c.bare)
		values = append(values, valueOf(root, c))
	}
	if len(names) == 0 {
		return nil
	}
	if _, err := t.src.Update(ctx, t.m.Table, key.Name, r.keyValue(key), names, values); err != nil {
		return err
	}
	r.connect()
	return nil
}

// UpdateRecord writes every column of rec to the row with rec's id, or its
// index when the table has no id.
func (t *Table[T]) UpdateRecord(ctx context.Context, rec *T) error {
	return t.update(ctx, t.Attach(rec))
}

// Delete removes a tracked record's row and marks it deleted.
func (t *Table[T]) Delete(ctx context.Context, r *Tracked[T]) (bool, error) {
	if r.State == StateDeleted {
		return false, ErrDeleted
	}
	if r.State == StateNew {
		return false, ErrNotConnected
	}
	key, err := t.m.key()
	if err != nil {
		return false, err
	}
	ok, err := t.src.Delete(ctx, t.m.Table, key.Name, r.keyValue(key))
	if err != nil {
		return false, err
	}
	r.State = StateDeleted
	r.Snapshot = nil
	return ok, nil
}

// DeleteByID removes the row with the given id.
func (t *Table[T]) DeleteByID(ctx context.Context, id any) (bool, error) {
	if t.m.ID == nil {
		return false, fmt.Errorf("%w: %s has no id column", ErrNoKey, t.m.Table)
	}
	return t.src.Delete(ctx, t.m.Table, t.m.ID.Name, id)
}

// DeleteByIndex removes the rows whose index column equals v.
func (t *Table[T]) DeleteByIndex(ctx context.Context, v any) (bool, error) {
	if t.m.Index == nil {
		return false, fmt.Errorf("%w: %s has no index column", ErrNoKey, t.m.Table)
	}
	return t.src.Delete(ctx, t.m.Table, t.m.Index.Name, v)
}

// Clear deletes every row of the table.
func (t *Table[T]) Clear(ctx context.Context) (int64, error) {
	return t.src.ExecSQL(ctx, buildDelete(t.m.Table, ""))
}
