package xtable

import (
	"context"
	"iter"
	"reflect"
	"strings"
)

// Select returns a query set projecting from into *T. The select list is T's
// columns by bare name, id included, in declaration order; the rows are not
// tracked.
//
//	type Total struct {
//	    Name  string  `db:"CustomerName"`
//	    Spent float64 `db:""`
//	}
//	set, err := xtable.Select[Total](src, "Totals", "Spent > 100")
func Select[T any](src *DataSource, from, where string) (*QuerySet[*T], error) {
	return projectionSet[T](src, from, where, true)
}

// SelectUnattributed is Select with every exported field of T taken as a
// column named after the field, tags ignored.
func SelectUnattributed[T any](src *DataSource, from, where string) (*QuerySet[*T], error) {
	return projectionSet[T](src, from, where, false)
}

// SelectList reads every row of Select.
func SelectList[T any](ctx context.Context, src *DataSource, from, where string) ([]*T, error) {
	q, err := Select[T](src, from, where)
	if err != nil {
		return nil, err
	}
	return q.ToList(ctx)
}

// SelectSQL runs an arbitrary query and maps each row onto T by position:
// column i fills T's i-th column field.
func SelectSQL[T any](ctx context.Context, src *DataSource, query string) iter.Seq2[*T, error] {
	return rawSelect[T](ctx, src, query, true)
}

// SelectSQLUnattributed is SelectSQL over every exported field of T.
func SelectSQLUnattributed[T any](ctx context.Context, src *DataSource, query string) iter.Seq2[*T, error] {
	return rawSelect[T](ctx, src, query, false)
}

// SelectSQLList reads every row of SelectSQL.
func SelectSQLList[T any](ctx context.Context, src *DataSource, query string) ([]*T, error) {
	return collect(SelectSQL[T](ctx, src, query))
}

func projectionSet[T any](src *DataSource, from, where string, attributed bool) (*QuerySet[*T], error) {
	t := reflect.TypeFor[T]()
	cols, err := src.reg.projection(t, attributed)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.bare
	}
	count := "*"
	if len(names) > 0 {
		count = names[0]
	}
	return &QuerySet[*T]{
		src:    src,
		d:      Descriptor{From: from, Where: where, Fields: strings.Join(names, ",")},
		decode: projector[T](src, t, cols),
		count:  count,
	}, nil
}

func rawSelect[T any](ctx context.Context, src *DataSource, query string, attributed bool) iter.Seq2[*T, error] {
	t := reflect.TypeFor[T]()
	cols, err := src.reg.projection(t, attributed)
	if err != nil {
		return func(yield func(*T, error) bool) { yield(nil, err) }
	}
	q := &QuerySet[*T]{src: src, decode: projector[T](src, t, cols)}
	return q.seq(ctx, query)
}

func projector[T any](src *DataSource, t reflect.Type, cols []*Column) func([]any) (*T, error) {
	return func(values []any) (*T, error) {
		rec, err := src.project(t, cols, values)
		if err != nil {
			return nil, err
		}
		return rec.Interface().(*T), nil
	}
}
