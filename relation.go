package xtable

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// FillJoin loads the association field of record, a *T, named by its Go field
// name. A field that already holds a non-zero value is left alone.
//
//   - one: the first row of U whose other column (default: U's id) equals
//     this record's ThisField; nil when there is none.
//   - many list: every row of U whose other column (default: the name of this
//     record's key column) equals this record's key. The reciprocal *T field
//     of each child is pointed back at record.
//   - many set: a JoinSet bound to the same condition; nothing is queried.
func (s *DataSource) FillJoin(ctx context.Context, record any, field string) error {
	root, m, err := s.recordRoot(record)
	if err != nil {
		return err
	}
	rel := m.relation(field)
	if rel == nil {
		return fmt.Errorf("%w: %s.%s", ErrNotRelation, m.Type.Name(), field)
	}
	return s.fillRelation(ctx, m, root, rel)
}

// FillJoins loads every association field of record that is still empty.
func (s *DataSource) FillJoins(ctx context.Context, record any) error {
	root, m, err := s.recordRoot(record)
	if err != nil {
		return err
	}
	for _, rel := range m.Relations {
		if err := s.fillRelation(ctx, m, root, rel); err != nil {
			return err
		}
	}
	return nil
}

func (s *DataSource) recordRoot(record any) (reflect.Value, *Mapping, error) {
	rv := reflect.ValueOf(record)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w: FillJoin needs a non-nil struct pointer, got %T", ErrNotStruct, record)
	}
	m, err := s.reg.mapping(rv.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return rv, m, nil
}

func (s *DataSource) fillRelation(ctx context.Context, m *Mapping, rec reflect.Value, rel *Relation) error {
	root := rec.Elem()
	fv := fieldAt(root, rel.Index)
	if !fv.IsZero() {
		return nil
	}
	tm, err := s.reg.mapping(rel.Target)
	if err != nil {
		return err
	}
	l := s.withTable(m.Table).With("field", rel.Field, "join", rel.Cardinality.String())

	switch rel.Cardinality {
	case One:
		other, err := oneOther(tm, rel)
		if err != nil {
			return err
		}
		thisVal, ok := thisValue(m, root, rel.ThisField)
		if !ok {
			l.Debug("join key unreachable", "this", rel.ThisField)
			return nil
		}
		recs, err := s.loadRecords(ctx, tm, other+" = "+ValueToSQL(thisVal), 1)
		if err != nil {
			return err
		}
		l.Debug("filled join", "rows", len(recs))
		if len(recs) > 0 {
			fv.Set(recs[0])
		}
		return nil

	case ManyList:
		thisCol, thisVal, other, err := manyKeys(m, tm, rel, root)
		if err != nil {
			return err
		}
		back, err := reciprocal(m, tm, thisCol, other)
		if err != nil {
			return err
		}
		recs, err := s.loadRecords(ctx, tm, other+" = "+ValueToSQL(thisVal), 0)
		if err != nil {
			return err
		}
		list := reflect.MakeSlice(fv.Type(), 0, len(recs))
		for _, child := range recs {
			if back != nil {
				fieldAt(child.Elem(), back.Index).Set(rec)
			}
			if rel.elemPtr {
				list = reflect.Append(list, child)
			} else {
				list = reflect.Append(list, child.Elem())
			}
		}
		l.Debug("filled join", "rows", len(recs))
		fv.Set(list)
		return nil

	case ManySet:
		return s.bindSet(m, tm, rel, root, fv)
	}
	return nil
}

// instantiateSets assigns every empty JoinSet field of a freshly read record.
func (s *DataSource) instantiateSets(m *Mapping, rec reflect.Value) error {
	for _, rel := range m.Relations {
		if rel.Cardinality != ManySet {
			continue
		}
		fv := fieldAt(rec.Elem(), rel.Index)
		if !fv.IsNil() {
			continue
		}
		tm, err := s.reg.mapping(rel.Target)
		if err != nil {
			return err
		}
		if err := s.bindSet(m, tm, rel, rec.Elem(), fv); err != nil {
			return err
		}
	}
	return nil
}

func (s *DataSource) bindSet(m, tm *Mapping, rel *Relation, root, fv reflect.Value) error {
	_, thisVal, other, err := manyKeys(m, tm, rel, root)
	if err != nil {
		return err
	}
	set := reflect.New(fv.Type().Elem())
	if err := set.Interface().(joinBinder).bind(s, other, thisVal); err != nil {
		return err
	}
	fv.Set(set)
	return nil
}

// oneOther is the target column of a to-one join: the declared other column,
// else the target's id.
func oneOther(tm *Mapping, rel *Relation) (string, error) {
	if rel.OtherField != "" {
		return targetColumn(tm, rel.OtherField), nil
	}
	if tm.ID == nil {
		return "", fmt.Errorf("%w: %s has no id for join %s", ErrNoKey, tm.Table, rel.Field)
	}
	return tm.ID.Name, nil
}

// manyKeys resolves a to-many join: this record's key column and value, and
// the matching column on the target table.
func manyKeys(m, tm *Mapping, rel *Relation, root reflect.Value) (*Column, any, string, error) {
	var thisCol *Column
	if rel.ThisField != "" {
		thisCol = m.columnByField(rel.ThisField)
		if thisCol == nil {
			return nil, nil, "", fmt.Errorf("%w: %s.%s is not a column", ErrUnknownField, m.Type.Name(), rel.ThisField)
		}
	} else {
		if m.ID == nil {
			return nil, nil, "", fmt.Errorf("%w: %s has no id for join %s", ErrNoKey, m.Table, rel.Field)
		}
		thisCol = m.ID
	}
	other := rel.OtherField
	if other == "" {
		other = thisCol.Alias
	}
	return thisCol, valueOf(root, thisCol), targetColumn(tm, other), nil
}

// thisValue reads the this-field of a join by its index path; ok is false
// when the field sits behind a nil embedded pointer.
func thisValue(m *Mapping, root reflect.Value, field string) (any, bool) {
	path := []int(nil)
	if c := m.columnByField(field); c != nil {
		path = c.Index
	} else if sf, found := derefPtr(m.Type).FieldByName(field); found {
		path = sf.Index
	} else {
		return nil, false
	}
	v, ok := fieldValue(root, path)
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

// targetColumn resolves a column of tm by SQL name or Go field name; an
// unknown name is used as written.
func targetColumn(tm *Mapping, name string) string {
	if c := tm.columnByName(name); c != nil {
		return c.Name
	}
	if c := tm.columnByField(name); c != nil {
		return c.Name
	}
	return name
}

// reciprocal finds the to-one field of the child type tm that points back at
// m through thisCol. A child field qualifies when its declared other column is
// thisCol, when it declares no other column and its this field names thisCol,
// or when it declares no other column, thisCol is m's id and the child's this
// column is the one the join filters on.
func reciprocal(m, tm *Mapping, thisCol *Column, otherCol string) (*Relation, error) {
	var found []*Relation
	for _, r := range tm.Relations {
		if r.Cardinality != One || r.Target != m.Type {
			continue
		}
		switch {
		case r.OtherField != "":
			if sameColumn(r.OtherField, thisCol) {
				found = append(found, r)
			}
		case sameColumn(r.ThisField, thisCol):
			found = append(found, r)
		case thisCol == m.ID:
			if c := tm.columnByField(r.ThisField); c != nil && strings.EqualFold(c.Name, otherCol) {
				found = append(found, r)
			}
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	names := make([]string, len(found))
	for i, r := range found {
		names[i] = r.Field
	}
	return nil, fmt.Errorf("%w: %s fields %s all point back at %s", ErrAmbiguousReciprocal, tm.Type.Name(), strings.Join(names, ", "), m.Table)
}

func sameColumn(name string, c *Column) bool {
	return strings.EqualFold(name, c.Alias) || strings.EqualFold(name, c.Field) || strings.EqualFold(name, c.Name)
}

// loadRecords reads up to top rows (all when top <= 0) of tm as *U values.
func (s *DataSource) loadRecords(ctx context.Context, tm *Mapping, where string, top int) ([]reflect.Value, error) {
	q := &QuerySet[reflect.Value]{
		src: s,
		d:   Descriptor{From: tm.Table, Where: where, Fields: tm.selectList()},
		decode: func(values []any) (reflect.Value, error) {
			rec, err := s.materialize(tm, values, 0)
			if err != nil {
				return rec, err
			}
			return rec, s.instantiateSets(tm, rec)
		},
	}
	return q.list(ctx, q.selectSQL(top, ""))
}
