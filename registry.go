package xtable

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// registry caches the mapping of every record type used on a data source.
// Table names are unique case-insensitively; clones share one registry.
type registry struct {
	mu      sync.Mutex
	quote   func(string) string
	byType  map[reflect.Type]*Mapping
	byTable map[string]*Mapping

	// projections caches ad hoc column lists, keyed by projectionKey.
	projections sync.Map
}

func newRegistry(quote func(string) string) *registry {
	return &registry{
		quote:   quote,
		byType:  make(map[reflect.Type]*Mapping),
		byTable: make(map[string]*Mapping),
	}
}

func (r *registry) mapping(t reflect.Type) (*Mapping, error) {
	t = derefPtr(t)
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.byType[t]; ok {
		return m, nil
	}
	m, err := Bind(t, r.quote)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(m.Table)
	if prev, ok := r.byTable[key]; ok && prev.Type != t {
		return nil, fmt.Errorf("%w: %s is bound to %s, not %s", ErrTableConflict, m.Table, prev.Type, t)
	}
	r.byType[t] = m
	r.byTable[key] = m
	return m, nil
}

type projectionKey struct {
	t          reflect.Type
	attributed bool
}

// projection returns the ordered fields of an ad hoc result type. Attributed
// projections follow the binding rules and include the id in declaration
// order; unattributed ones take every exported field. Names are bare.
func (r *registry) projection(t reflect.Type, attributed bool) ([]*Column, error) {
	t = derefPtr(t)
	key := projectionKey{t, attributed}
	if v, ok := r.projections.Load(key); ok {
		return v.([]*Column), nil
	}
	var cols []*Column
	if attributed {
		m, err := Bind(t, nil)
		if err != nil {
			return nil, err
		}
		for _, c := range m.fields {
			cc := *c
			cc.Name = c.Alias
			cc.bare = c.Alias
			cols = append(cols, &cc)
		}
	} else {
		if t.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: %s", ErrNotStruct, t)
		}
		for _, sf := range reflect.VisibleFields(t) {
			if !sf.IsExported() || sf.Anonymous {
				continue
			}
			cols = append(cols, &Column{
				Field: sf.Name, Index: sf.Index, Type: sf.Type,
				Name: sf.Name, Alias: sf.Name, bare: sf.Name,
			})
		}
	}
	r.projections.Store(key, cols)
	return cols, nil
}
