package xtable

import (
	"fmt"
	"reflect"
	"strings"
)

// JoinedRecord is one row of a join, split into one record per joined table.
type JoinedRecord struct {
	src   *DataSource
	parts []joinPart
}

type joinPart struct {
	m    *Mapping
	rec  reflect.Value // *T; invalid when the LEFT JOIN found no row
	snap Snapshot
}

// Len returns the number of joined tables.
func (jr JoinedRecord) Len() int { return len(jr.parts) }

// Record returns part i as a *T in an interface, or nil when the LEFT JOIN
// found no row for it.
func (jr JoinedRecord) Record(i int) any {
	if i < 0 || i >= len(jr.parts) || !jr.parts[i].rec.IsValid() {
		return nil
	}
	return jr.parts[i].rec.Interface()
}

// JoinPart returns part i of jr as a tracked record of T, or nil when the LEFT
// JOIN found no row for it.
func JoinPart[T any](jr JoinedRecord, i int) (*Tracked[T], error) {
	if i < 0 || i >= len(jr.parts) {
		return nil, fmt.Errorf("xtable: join part %d out of range [0,%d)", i, len(jr.parts))
	}
	p := jr.parts[i]
	if want := reflect.TypeFor[T](); p.m.Type != want {
		return nil, fmt.Errorf("%w: join part %d is %s, not %s", ErrNotStruct, i, p.m.Type, want)
	}
	if !p.rec.IsValid() {
		return nil, nil
	}
	r := &Tracked[T]{Record: p.rec.Interface().(*T), table: &Table[T]{src: jr.src, m: p.m}}
	r.connect()
	if p.snap != nil {
		r.Snapshot = p.snap
	}
	return r, nil
}

// Join left-joins A to B on B's onField column (or Go field) = A's id.
func Join[A, B any](src *DataSource, onField string) (*QuerySet[JoinedRecord], error) {
	return JoinTypes(src, []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()}, []string{onField})
}

// Join3 chains A, B and C: B.onAB = A.id, C.onBC = B.id.
func Join3[A, B, C any](src *DataSource, onAB, onBC string) (*QuerySet[JoinedRecord], error) {
	return JoinTypes(src,
		[]reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]()},
		[]string{onAB, onBC})
}

// Join4 chains four tables the way Join3 chains three.
func Join4[A, B, C, D any](src *DataSource, onAB, onBC, onCD string) (*QuerySet[JoinedRecord], error) {
	return JoinTypes(src,
		[]reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C](), reflect.TypeFor[D]()},
		[]string{onAB, onBC, onCD})
}

// JoinTypes builds a left-join chain over types: table i+1 joins table i on
// onFields[i] = table i's id. Every table but the last needs an id.
//
//	A LEFT JOIN B ON A.ID=B.aID
//	(A LEFT JOIN B ON A.ID=B.aID) LEFT JOIN C ON B.ID=C.bID
func JoinTypes(src *DataSource, types []reflect.Type, onFields []string) (*QuerySet[JoinedRecord], error) {
	if len(types) < 2 || len(onFields) != len(types)-1 {
		return nil, fmt.Errorf("xtable: join needs n >= 2 types and n-1 fields, got %d and %d", len(types), len(onFields))
	}
	maps := make([]*Mapping, len(types))
	for i, t := range types {
		m, err := src.reg.mapping(t)
		if err != nil {
			return nil, err
		}
		maps[i] = m
	}

	var head, tail *JoinStep
	for i, on := range onFields {
		left, right := maps[i], maps[i+1]
		if left.ID == nil {
			return nil, fmt.Errorf("%w: %s has no id to join %s on", ErrNoKey, left.Table, right.Table)
		}
		st := &JoinStep{
			LeftTable:  left.Table,
			LeftKey:    left.ID.Name,
			RightTable: right.Table,
			RightKey:   targetColumn(right, on),
		}
		if head == nil {
			head = st
		} else {
			tail.Next = st
		}
		tail = st
	}

	lists := make([]string, len(maps))
	counts := make([]int, len(maps))
	for i, m := range maps {
		lists[i] = m.qualifiedList()
		counts[i] = m.width()
	}
	offsets := JoinOffsets(counts)

	return &QuerySet[JoinedRecord]{
		src: src,
		d:   Descriptor{From: head.From(), Fields: strings.Join(lists, ",")},
		decode: func(values []any) (JoinedRecord, error) {
			jr := JoinedRecord{src: src, parts: make([]joinPart, len(maps))}
			if need := offsets[len(offsets)-1][1]; len(values) < need {
				return jr, fmt.Errorf("xtable: joined row has %d columns, need %d", len(values), need)
			}
			for i, m := range maps {
				jr.parts[i].m = m
				if allNull(values[offsets[i][0]:offsets[i][1]]) {
					continue
				}
				rec, err := src.materialize(m, values, offsets[i][0])
				if err != nil {
					return jr, err
				}
				if err := src.instantiateSets(m, rec); err != nil {
					return jr, err
				}
				jr.parts[i].rec = rec
				if src.cfg.smart {
					jr.parts[i].snap = capture(m, rec)
				}
			}
			return jr, nil
		},
		count: "*",
	}, nil
}

func allNull(values []any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}
