package xtable

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"time"
)

// set returns the table set of t filtered by where and ordered by orderBy.
func (t *Table[T]) set(where, orderBy string) *QuerySet[*Tracked[T]] {
	return &QuerySet[*Tracked[T]]{
		src: t.src,
		d: Descriptor{
			From:    t.m.Table,
			Where:   where,
			OrderBy: orderBy,
			Fields:  t.m.selectList(),
		},
		decode: t.decode,
		m:      t.m,
		count:  t.m.countColumn(),
		like:   t.m.likeColumn(),
	}
}

// All returns the set of every row.
func (t *Table[T]) All() *QuerySet[*Tracked[T]] { return t.set("", "") }

// Where returns the set of rows matching criteria.
func (t *Table[T]) Where(criteria string) *QuerySet[*Tracked[T]] { return t.set(criteria, "") }

// Select enumerates at most top rows (all when top <= 0) matching criteria in
// the given order.
func (t *Table[T]) Select(ctx context.Context, top int, criteria, orderBy string) iter.Seq2[*Tracked[T], error] {
	q := t.set(criteria, orderBy)
	return q.seq(ctx, q.selectSQL(top, ""))
}

// SelectList reads at most top rows (all when top <= 0) matching criteria.
func (t *Table[T]) SelectList(ctx context.Context, top int, criteria, orderBy string) ([]*Tracked[T], error) {
	q := t.set(criteria, orderBy)
	return q.list(ctx, q.selectSQL(top, ""))
}

// Like returns the set of rows whose index column, or else first string
// column, matches pattern.
func (t *Table[T]) Like(pattern string) *QuerySet[*Tracked[T]] {
	col := t.m.likeColumn()
	if col == "" {
		return t.set("1=0", "")
	}
	return t.set(likeCriteria(col, pattern), "")
}

// LikeList reads the rows matched by Like.
func (t *Table[T]) LikeList(ctx context.Context, pattern string) ([]*Tracked[T], error) {
	return collect(t.All().Like(ctx, pattern))
}

// ByFieldSet returns the set of rows whose Go field equals value.
func (t *Table[T]) ByFieldSet(field string, value any) (*QuerySet[*Tracked[T]], error) {
	c := t.m.columnByField(field)
	if c == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.m.Type.Name(), field)
	}
	return t.set(c.Name+" = "+ValueToSQL(value), ""), nil
}

// ByField reads every row whose Go field equals value.
func (t *Table[T]) ByField(ctx context.Context, field string, value any) ([]*Tracked[T], error) {
	q, err := t.ByFieldSet(field, value)
	if err != nil {
		return nil, err
	}
	return q.ToList(ctx)
}

// ByFieldFirst reads the first row whose Go field equals value, or sql.ErrNoRows.
func (t *Table[T]) ByFieldFirst(ctx context.Context, field string, value any) (*Tracked[T], error) {
	q, err := t.ByFieldSet(field, value)
	if err != nil {
		return nil, err
	}
	return q.First(ctx)
}

// Count returns the number of rows in the table.
func (t *Table[T]) Count(ctx context.Context) (int, error) { return t.All().Count(ctx) }

// CountQuery returns the number of rows matching criteria.
func (t *Table[T]) CountQuery(ctx context.Context, criteria string) (int, error) {
	return t.All().QueryCount(ctx, criteria)
}

// Sum adds up a Go field or column over the rows matching criteria.
func (t *Table[T]) Sum(ctx context.Context, field, criteria string) (float64, error) {
	return t.Where(criteria).Sum(ctx, field)
}

// IDs lists the id of every row, in ascending order when sorted is set.
func (t *Table[T]) IDs(ctx context.Context, sorted bool) ([]int64, error) {
	if t.m.ID == nil {
		return nil, fmt.Errorf("%w: %s has no id column", ErrNoKey, t.m.Table)
	}
	order := ""
	if sorted {
		order = t.m.ID.Name + " asc"
	}
	return firstColumn[int64](ctx, t.src, buildSelect(t.m.ID.Name, t.m.Table, 0, "", order))
}

// DistinctValues lists the distinct values of a Go field or column of t,
// converted to V, in ascending order when sorted is set.
func DistinctValues[V, T any](ctx context.Context, t *Table[T], field string, sorted bool) ([]V, error) {
	col := field
	if c := t.m.columnByField(field); c != nil {
		col = c.Name
	}
	order := ""
	if sorted {
		order = col + " asc"
	}
	return firstColumn[V](ctx, t.src, buildSelect("distinct "+col, t.m.Table, 0, "", order))
}

// firstColumn reads the first column of every row of query.
func firstColumn[V any](ctx context.Context, src *DataSource, query string) ([]V, error) {
	vt := reflect.TypeFor[V]()
	q := &QuerySet[V]{
		src: src,
		decode: func(values []any) (V, error) {
			var v V
			if len(values) == 0 {
				return v, nil
			}
			err := assign(reflect.ValueOf(&v).Elem(), values[0])
			if err != nil {
				err = fmt.Errorf("%w (as %s)", err, vt)
			}
			return v, err
		},
	}
	return q.list(ctx, query)
}

// ToListFillJoins reads the rows matching criteria and fills every
// association field of each.
func (t *Table[T]) ToListFillJoins(ctx context.Context, criteria string) ([]*Tracked[T], error) {
	list, err := t.Where(criteria).ToList(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if err := r.FillJoins(ctx); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func collect[E any](seq iter.Seq2[E, error]) ([]E, error) {
	var out []E
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ---------------- Dates ----------------

// The date helpers work on the first time.Time column of T and fail with
// ErrNoDateColumn when there is none.

// AtDateSet returns the set of rows dated on day.
func (t *Table[T]) AtDateSet(day time.Time) (*QuerySet[*Tracked[T]], error) {
	c, err := t.m.dateColumn()
	if err != nil {
		return nil, err
	}
	return t.set(c.Name+"="+t.src.dialect.DateLiteral(day), ""), nil
}

// AtDateFirst reads the first row dated on day, or sql.ErrNoRows.
func (t *Table[T]) AtDateFirst(ctx context.Context, day time.Time) (*Tracked[T], error) {
	q, err := t.AtDateSet(day)
	if err != nil {
		return nil, err
	}
	return q.First(ctx)
}

// DateRangeCriteria renders "col between 'from' and 'to'".
func (t *Table[T]) DateRangeCriteria(from, to time.Time) (string, error) {
	c, err := t.m.dateColumn()
	if err != nil {
		return "", err
	}
	return c.Name + " between " + t.src.dialect.DateLiteral(from) + " and " + t.src.dialect.DateLiteral(to), nil
}

// DateRangeSet returns the set of rows dated between from and to, inclusive.
func (t *Table[T]) DateRangeSet(from, to time.Time) (*QuerySet[*Tracked[T]], error) {
	where, err := t.DateRangeCriteria(from, to)
	if err != nil {
		return nil, err
	}
	return t.set(where, ""), nil
}

// DeleteByDateRange removes the rows dated between from and to.
func (t *Table[T]) DeleteByDateRange(ctx context.Context, from, to time.Time) (bool, error) {
	where, err := t.DateRangeCriteria(from, to)
	if err != nil {
		return false, err
	}
	return t.src.DeleteWhere(ctx, t.m.Table, where)
}

// FirstDate returns the earliest date in the table; ok is false when the
// table is empty.
func (t *Table[T]) FirstDate(ctx context.Context) (d time.Time, ok bool, err error) {
	return t.edgeDate(ctx, "")
}

// LastDate returns the latest date in the table.
func (t *Table[T]) LastDate(ctx context.Context) (d time.Time, ok bool, err error) {
	return t.edgeDate(ctx, " DESC")
}

func (t *Table[T]) edgeDate(ctx context.Context, dir string) (time.Time, bool, error) {
	c, err := t.m.dateColumn()
	if err != nil {
		return time.Time{}, false, err
	}
	v, err := t.src.ExecScalarValue(ctx, buildSelect(c.Name, t.m.Table, 1, "", c.Name+dir))
	if err != nil || v == nil {
		return time.Time{}, false, err
	}
	d, err := asTime(v)
	if err != nil {
		return time.Time{}, false, conversionError(v, timeType, err)
	}
	return d, true, nil
}
