package xtable

import (
	"context"
	"fmt"
	"reflect"
)

// JoinSet is the deferred "many" side of an association: the rows of T whose
// OnField column equals the owning record's key. It is a table set, so every
// QuerySet operation applies; Add and Clear maintain the association.
//
//	type Customer struct {
//	    ID     int                     `db:",id"`
//	    Orders *xtable.JoinSet[Order]  `join:"many,other=CustomerID"`
//	}
//
// Fields of this type are assigned whenever a Customer is read through its
// table or filled with FillJoin.
type JoinSet[T any] struct {
	*QuerySet[*Tracked[T]]

	table   *Table[T]
	onField *Column
	onValue any
}

// joinBinder is implemented by *JoinSet[T] for any T.
type joinBinder interface {
	bind(src *DataSource, onField string, onValue any) error
	target() reflect.Type
}

var joinBinderType = reflect.TypeFor[joinBinder]()

func (j *JoinSet[T]) target() reflect.Type { return reflect.TypeFor[T]() }

func (j *JoinSet[T]) bind(src *DataSource, onField string, onValue any) error {
	t, err := TableOf[T](src)
	if err != nil {
		return err
	}
	c := t.m.columnByName(onField)
	if c == nil {
		c = t.m.columnByField(onField)
	}
	if c == nil {
		return fmt.Errorf("%w: %s has no column %s", ErrUnknownField, t.m.Table, onField)
	}
	j.table, j.onField, j.onValue = t, c, onValue
	j.QuerySet = t.set(c.Name+" = "+ValueToSQL(onValue), "")
	return nil
}

// Table returns the table of the joined records.
func (j *JoinSet[T]) Table() *Table[T] { return j.table }

// OnValue returns the key value the set is filtered on.
func (j *JoinSet[T]) OnValue() any { return j.onValue }

// Add stores the set's key into rec's foreign key field and inserts it.
func (j *JoinSet[T]) Add(ctx context.Context, rec *T) (*Tracked[T], error) {
	dst := fieldAt(reflect.ValueOf(rec).Elem(), j.onField.Index)
	if err := assign(dst, j.onValue); err != nil {
		return nil, err
	}
	return j.table.Insert(ctx, rec)
}
