package xtable

import (
	"context"
	"fmt"
	"reflect"
)

// State is the storage state of a tracked record.
type State int

const (
	StateNew       State = iota // never read from or written to storage
	StateConnected              // read or written; carries an id or index
	StateDeleted                // deleted; terminal
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateDeleted:
		return "deleted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Tracked is a record bound to its table together with the snapshot taken at
// its last successful read or write. Update writes only the columns whose
// values differ from the snapshot.
type Tracked[T any] struct {
	Record   *T
	Snapshot Snapshot
	State    State

	table     *Table[T]
	indexCopy any // index value at load time, for tables without an id
}

// Update writes the changed columns of a connected record. It issues no
// statement when nothing changed.
func (r *Tracked[T]) Update(ctx context.Context) error {
	if err := r.connected(); err != nil {
		return err
	}
	return r.table.update(ctx, r)
}

// Delete removes the record's row. The record ends in StateDeleted; deleting
// it again returns false and ErrDeleted without touching storage.
func (r *Tracked[T]) Delete(ctx context.Context) (bool, error) {
	if r.State == StateDeleted {
		return false, ErrDeleted
	}
	if err := r.connected(); err != nil {
		return false, err
	}
	return r.table.Delete(ctx, r)
}

// UpdateOrInsert inserts a new record and updates a connected one.
func (r *Tracked[T]) UpdateOrInsert(ctx context.Context) error {
	switch r.State {
	case StateDeleted:
		return ErrDeleted
	case StateNew:
		return r.table.insert(ctx, r)
	}
	return r.table.update(ctx, r)
}

// FillJoin loads one association field of the record. See DataSource.FillJoin.
func (r *Tracked[T]) FillJoin(ctx context.Context, field string) error {
	if err := r.connected(); err != nil {
		return err
	}
	return r.table.src.FillJoin(ctx, r.Record, field)
}

// FillJoins loads every association field of the record that is still empty.
func (r *Tracked[T]) FillJoins(ctx context.Context) error {
	if err := r.connected(); err != nil {
		return err
	}
	return r.table.src.FillJoins(ctx, r.Record)
}

// Changed lists the Go fields whose values differ from the snapshot. Without a
// snapshot every column counts as changed.
func (r *Tracked[T]) Changed() []string {
	root := reflect.ValueOf(r.Record).Elem()
	var out []string
	for _, c := range r.table.m.Columns {
		if prev, ok := r.Snapshot[c.Name]; ok && sameValue(prev, snapshotValue(root, c)) {
			continue
		}
		out = append(out, c.Field)
	}
	return out
}

// DidFieldChange compares one Go field with the snapshot. known is false when
// the record has no snapshot or field is not a column.
func (r *Tracked[T]) DidFieldChange(field string) (changed, known bool) {
	c := r.table.m.columnByField(field)
	if c == nil || r.Snapshot == nil {
		return false, false
	}
	prev, ok := r.Snapshot[c.Name]
	if !ok {
		return false, false
	}
	root := reflect.ValueOf(r.Record).Elem()
	return !sameValue(prev, snapshotValue(root, c)), true
}

func (r *Tracked[T]) recordValue() reflect.Value { return reflect.ValueOf(r.Record) }

func (r *Tracked[T]) connected() error {
	switch r.State {
	case StateNew:
		return ErrNotConnected
	case StateDeleted:
		return ErrDeleted
	}
	return nil
}

// keyValue is the value that identifies the record's row.
func (r *Tracked[T]) keyValue(key *Column) any {
	if key.IsID || r.indexCopy == nil {
		return valueOf(reflect.ValueOf(r.Record).Elem(), key)
	}
	return r.indexCopy
}

// connect marks the record as stored and, with smart updates on, refreshes
// the snapshot from the record's current values.
func (r *Tracked[T]) connect() {
	m := r.table.m
	rec := reflect.ValueOf(r.Record)
	r.State = StateConnected
	if m.ID == nil && m.Index != nil {
		r.indexCopy = snapshotValue(rec.Elem(), m.Index)
	}
	if r.table.src.cfg.smart {
		r.Snapshot = capture(m, rec)
	}
}
