package xtable

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"reflect"
	"strings"
)

// Descriptor holds the SQL sections of a query set.
type Descriptor struct {
	From    string
	Where   string
	OrderBy string
	Fields  string
}

// QuerySet is a lazily executed, composable query. Sort and Subset return new
// sets; the receiver never changes. Every enumeration re-executes the query.
//
// E is *Tracked[T] for table sets, *T for projections and JoinedRecord for
// joins.
type QuerySet[E any] struct {
	src    *DataSource
	d      Descriptor
	decode func([]any) (E, error)

	m     *Mapping // set for table sets only
	count string   // column counted by Count
	like  string   // column matched by Like
}

// Descriptor returns the SQL sections of q.
func (q *QuerySet[E]) Descriptor() Descriptor { return q.d }

// SQL returns the SELECT statement q runs, before dialect rewriting.
func (q *QuerySet[E]) SQL() string { return q.selectSQL(0, "") }

// Sort returns q ordered by orderBy, replacing any previous order.
func (q *QuerySet[E]) Sort(orderBy string) *QuerySet[E] {
	c := *q
	c.d.OrderBy = orderBy
	return &c
}

// Subset returns q further filtered by criteria: "(old) and (new)".
func (q *QuerySet[E]) Subset(criteria string) *QuerySet[E] {
	c := *q
	c.d.Where = andCriteria(q.d.Where, criteria)
	return &c
}

func (q *QuerySet[E]) selectSQL(top int, criteria string) string {
	return buildSelect(q.d.Fields, q.d.From, top, andCriteria(q.d.Where, criteria), q.d.OrderBy)
}

// ---------------- Enumeration ----------------

// All enumerates q one row at a time. Stopping the range loop early releases
// the cursor; a close error is yielded as the last element.
func (q *QuerySet[E]) All(ctx context.Context) iter.Seq2[E, error] {
	return q.seq(ctx, q.selectSQL(0, ""))
}

// Query enumerates the rows of q that also match criteria. The criteria are
// not kept on q.
func (q *QuerySet[E]) Query(ctx context.Context, criteria string) iter.Seq2[E, error] {
	return q.seq(ctx, q.selectSQL(0, criteria))
}

// QueryByField enumerates the rows whose field equals value. On table sets
// field may be a Go field name; otherwise it is used as a column name.
func (q *QuerySet[E]) QueryByField(ctx context.Context, field string, value any) iter.Seq2[E, error] {
	return q.Query(ctx, q.column(field)+" = "+ValueToSQL(value))
}

// Like enumerates the rows whose index column, or else first string column,
// matches pattern. A pattern without % gets one appended.
func (q *QuerySet[E]) Like(ctx context.Context, pattern string) iter.Seq2[E, error] {
	if q.like == "" {
		return func(yield func(E, error) bool) {
			var zero E
			yield(zero, fmt.Errorf("%w: no index or string column to match", ErrUnknownField))
		}
	}
	return q.Query(ctx, likeCriteria(q.like, pattern))
}

func (q *QuerySet[E]) column(field string) string {
	if q.m != nil {
		if c := q.m.columnByField(field); c != nil {
			return c.Name
		}
	}
	return field
}

func (q *QuerySet[E]) seq(ctx context.Context, query string) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		var zero E
		rows, err := q.open(ctx, query)
		if err != nil {
			yield(zero, err)
			return
		}
		for rows.Next() {
			if !yield(rows.Value(), nil) {
				_ = rows.Close()
				return
			}
		}
		err = rows.Err()
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			yield(zero, err)
		}
	}
}

// ToList reads every row of q.
func (q *QuerySet[E]) ToList(ctx context.Context) ([]E, error) {
	return q.list(ctx, q.selectSQL(0, ""))
}

func (q *QuerySet[E]) list(ctx context.Context, query string) ([]E, error) {
	var out []E
	for e, err := range q.seq(ctx, query) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// First reads the first row of q with a TOP 1 select. It returns
// sql.ErrNoRows when q is empty.
func (q *QuerySet[E]) First(ctx context.Context) (E, error) {
	var zero E
	list, err := q.list(ctx, q.selectSQL(1, ""))
	if err != nil {
		return zero, err
	}
	if len(list) == 0 {
		return zero, sql.ErrNoRows
	}
	return list[0], nil
}

// Rows opens an explicit enumerator over q.
//
//	rows, err := set.Rows(ctx)
//	if err != nil { ... }
//	defer rows.Close()
//	for rows.Next() {
//	    use(rows.Value())
//	}
//	return rows.Err()
func (q *QuerySet[E]) Rows(ctx context.Context) (*Rows[E], error) {
	return q.open(ctx, q.selectSQL(0, ""))
}

func (q *QuerySet[E]) open(ctx context.Context, query string) (*Rows[E], error) {
	cur, err := q.src.ExecuteReader(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Rows[E]{src: q.src, cur: cur, decode: q.decode}, nil
}

// Rows is a single-pass enumerator over a query set.
type Rows[E any] struct {
	src    *DataSource
	cur    Cursor
	decode func([]any) (E, error)

	vals   []any
	ptrs   []any
	value  E
	err    error
	closed bool
}

// Next advances to the next row. It returns false at the end of the rows or
// on the first error.
func (r *Rows[E]) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	if !r.cur.Next() {
		r.err = r.cur.Err()
		return false
	}
	if r.ptrs == nil {
		cols, err := r.cur.Columns()
		if err != nil {
			r.err = err
			return false
		}
		r.vals = make([]any, len(cols))
		r.ptrs = make([]any, len(cols))
		for i := range r.vals {
			r.ptrs[i] = &r.vals[i]
		}
	}
	clear(r.vals)
	if err := r.cur.Scan(r.ptrs...); err != nil {
		r.err = err
		return false
	}
	r.value, r.err = r.decode(r.vals)
	return r.err == nil
}

// Value returns the current row.
func (r *Rows[E]) Value() E { return r.value }

// Err returns the error that ended the enumeration, if any.
func (r *Rows[E]) Err() error { return r.err }

// Close releases the cursor and any connection opened for it. It is safe to
// call more than once.
func (r *Rows[E]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.DisposeReader(r.cur)
}

// ---------------- Aggregates ----------------

// Count returns the number of rows in q.
func (q *QuerySet[E]) Count(ctx context.Context) (int, error) {
	return q.QueryCount(ctx, "")
}

// QueryCount returns the number of rows in q that also match criteria.
func (q *QuerySet[E]) QueryCount(ctx context.Context, criteria string) (int, error) {
	return q.src.ExecScalar(ctx, buildFunction(FuncCount, q.count, q.d.From, andCriteria(q.d.Where, criteria)))
}

// Function applies an aggregate to field over q. NULL (an empty set) yields 0.
func (q *QuerySet[E]) Function(ctx context.Context, fn SQLFunc, field string) (float64, error) {
	v, err := q.src.ExecScalarValue(ctx, buildFunction(fn, q.column(field), q.d.From, q.d.Where))
	if err != nil || v == nil {
		return 0, err
	}
	f, err := asFloat64(v)
	if err != nil {
		return 0, conversionError(v, reflect.TypeFor[float64](), err)
	}
	return f, nil
}

// Sum adds up field over q.
func (q *QuerySet[E]) Sum(ctx context.Context, field string) (float64, error) {
	return q.Function(ctx, FuncSum, field)
}

// GroupResult is one row of a grouped aggregate. Extra is nil when no extra
// column was grouped.
type GroupResult struct {
	GroupedBy any
	Extra     any
	Value     float64
}

// Group aggregates over with fn per distinct value of by (and extra, when not
// empty), filtered by having when not empty.
func (q *QuerySet[E]) Group(ctx context.Context, by, extra string, fn SQLFunc, over, having string) iter.Seq2[GroupResult, error] {
	by, over = q.column(by), q.column(over)
	if extra != "" {
		extra = q.column(extra)
	}
	g := &QuerySet[GroupResult]{
		src: q.src,
		d:   q.d,
		decode: func(values []any) (GroupResult, error) {
			var r GroupResult
			if len(values) < 2 {
				return r, fmt.Errorf("xtable: group row has %d columns", len(values))
			}
			r.GroupedBy = values[0]
			if extra != "" && len(values) > 2 {
				r.Extra = values[1]
			}
			last := values[len(values)-1]
			if last == nil {
				return r, nil
			}
			f, err := asFloat64(last)
			if err != nil {
				return r, conversionError(last, reflect.TypeFor[float64](), err)
			}
			r.Value = f
			return r, nil
		},
	}
	return g.seq(ctx, buildGroup(by, extra, fn, over, q.d.From, q.d.Where, having))
}

// ---------------- Table sets ----------------

// Clear deletes the rows of a table set and returns how many were removed.
func (q *QuerySet[E]) Clear(ctx context.Context) (int64, error) {
	if q.m == nil {
		return 0, ErrNotTableSet
	}
	return q.src.exec(ctx, opExec, q.m.Table, buildDelete(q.m.Table, q.d.Where))
}

// Contains reports whether rec is in a table set. A record with an id is
// looked up by id, any other by the values of all its columns.
func (q *QuerySet[E]) Contains(ctx context.Context, rec E) (bool, error) {
	if q.m == nil {
		return false, ErrNotTableSet
	}
	var rv reflect.Value
	if h, ok := any(rec).(recordHolder); ok {
		rv = h.recordValue()
	} else {
		rv = reflect.ValueOf(rec)
	}
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != q.m.Type {
		return false, fmt.Errorf("%w: %T is not a %s record", ErrNotStruct, rec, q.m.Table)
	}
	n, err := q.QueryCount(ctx, matchCriteria(q.m, rv.Elem()))
	return n > 0, err
}

// matchCriteria selects the row of root: by id when it is set, otherwise by
// every column value.
func matchCriteria(m *Mapping, root reflect.Value) string {
	if m.ID != nil {
		if v, ok := fieldValue(root, m.ID.Index); ok && !v.IsZero() {
			return m.ID.Name + " = " + ValueToSQL(v.Interface())
		}
	}
	parts := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		v := valueOf(root, c)
		lit := ValueToSQL(v)
		if lit == "NULL" {
			parts = append(parts, c.Name+" IS NULL")
			continue
		}
		parts = append(parts, c.Name+" = "+lit)
	}
	return strings.Join(parts, " and ")
}

// recordHolder is implemented by wrappers around a *T record.
type recordHolder interface {
	recordValue() reflect.Value
}
