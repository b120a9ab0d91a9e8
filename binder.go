package xtable

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// RecordConfig is the type-level configuration of a record.
type RecordConfig struct {
	Table      string // table name; default is the type name + "s"
	AllFields  bool   // every exported field is a column unless tagged db:"-"
	IDField    string // Go field name or alias of the id column
	IndexField string // Go field name or alias of the index column
	ManualID   bool   // the id is supplied on insert rather than generated
}

// Configurer is implemented by record types that configure their table.
//
//	func (Customer) RecordConfig() xtable.RecordConfig {
//	    return xtable.RecordConfig{AllFields: true, IDField: "ID"}
//	}
type Configurer interface {
	RecordConfig() RecordConfig
}

// TableNamer is implemented by record types that only rename their table.
type TableNamer interface {
	TableName() string
}

// Column maps one struct field to one column.
type Column struct {
	Field string       // Go field name
	Index []int        // field path for reflect.Value.FieldByIndex
	Type  reflect.Type // field type
	// Name is the column as written in SELECT lists and criteria. A renamed
	// column is qualified with its table: Customers.[CustomerName].
	Name string
	// Alias is the bare column name, without qualifier or quotes.
	Alias         string
	IsID          bool
	IsIndex       bool
	SQLType       string // explicit DDL type from type=<sql>
	AutoIncrement bool

	bare string // name in INSERT and SET lists
}

// Cardinality is the shape of an association field.
type Cardinality int

const (
	One      Cardinality = iota // *U
	ManyList                    // []*U or []U
	ManySet                     // *JoinSet[U]
)

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case ManyList:
		return "many"
	case ManySet:
		return "set"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// Relation is an association field declared with a `join` tag.
type Relation struct {
	Field       string
	Index       []int
	ThisField   string // Go field on this record holding the key value
	OtherField  string // column on the target table
	Cardinality Cardinality
	Target      reflect.Type // the related struct type U
	elemPtr     bool         // []*U rather than []U
}

// Mapping describes how a struct type maps to a table. It is immutable after
// Bind returns.
type Mapping struct {
	Table         string
	Type          reflect.Type
	Columns       []*Column // non-id columns in declaration order
	ID            *Column
	Index         *Column
	AutoIncrement bool
	Relations     []*Relation

	fields []*Column // every column, id included, in declaration order
}

// Bind derives the mapping of struct type t. quote renders a renamed column's
// alias for the target dialect; nil leaves it bare.
//
// Field tags:
//
//	Name    string `db:"CustomerName,index"`   // renamed, index column
//	ID      int    `db:",id"`                  // auto-increment id
//	Code    string `db:",id,noauto"`           // manual id
//	Notes   string `db:",type=ntext"`          // explicit DDL type
//	Secret  string `db:"-"`                    // never a column
//	Orders  []*Order `join:"many,other=CustomerID"`
//	Owner   *Customer `join:"one,this=CustomerID"`
//
// Untagged exported fields are columns only when RecordConfig.AllFields is set.
// An id and an index are both optional; operations that need a key fail with
// ErrNoKey.
func Bind(t reflect.Type, quote func(string) string) (*Mapping, error) {
	t = derefPtr(t)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, t)
	}
	if quote == nil {
		quote = func(s string) string { return s }
	}

	cfg := recordConfig(t)
	m := &Mapping{
		Table:         cfg.Table,
		Type:          t,
		AutoIncrement: !cfg.ManualID,
	}

	var walk func(t reflect.Type, base []int) error
	walk = func(t reflect.Type, base []int) error {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous {
				continue
			}
			path := append(append([]int(nil), base...), i)

			if jt, ok := sf.Tag.Lookup("join"); ok {
				rel, err := parseRelation(t, sf, jt)
				if err != nil {
					return err
				}
				rel.Index = path
				m.Relations = append(m.Relations, rel)
				continue
			}

			tag, tagged := sf.Tag.Lookup("db")
			if tag == "-" {
				continue
			}
			if sf.Anonymous && !tagged && isStruct(sf.Type) && derefPtr(sf.Type) != timeType {
				if err := walk(derefPtr(sf.Type), path); err != nil {
					return err
				}
				continue
			}
			if sf.PkgPath != "" {
				continue
			}
			if !tagged && !cfg.AllFields {
				continue
			}

			o, err := parseTag(tag)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
			}
			c := &Column{
				Field:   sf.Name,
				Index:   path,
				Type:    sf.Type,
				Alias:   sf.Name,
				SQLType: o.sqlType,
			}
			c.Name, c.bare = c.Alias, c.Alias
			if o.alias != "" {
				c.Alias = o.alias
				if strings.EqualFold(o.alias, sf.Name) {
					c.Name, c.bare = o.alias, o.alias
				} else {
					c.bare = quote(o.alias)
					c.Name = m.Table + "." + c.bare
				}
			}
			c.IsID = o.id || matches(cfg.IDField, c)
			c.IsIndex = o.index || matches(cfg.IndexField, c)

			if c.IsID {
				if m.ID != nil {
					return fmt.Errorf("%w: %s has two id fields (%s, %s)", ErrBadTag, t.Name(), m.ID.Field, c.Field)
				}
				if o.noauto {
					m.AutoIncrement = false
				}
				c.AutoIncrement = m.AutoIncrement
				m.ID = c
				m.fields = append(m.fields, c)
				continue
			}
			if c.IsIndex && m.Index == nil {
				m.Index = c
			}
			m.Columns = append(m.Columns, c)
			m.fields = append(m.fields, c)
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}
	if m.ID == nil {
		m.AutoIncrement = false
	}
	return m, nil
}

func recordConfig(t reflect.Type) RecordConfig {
	var cfg RecordConfig
	v := reflect.New(t).Interface()
	if c, ok := v.(Configurer); ok {
		cfg = c.RecordConfig()
	}
	if cfg.Table == "" {
		if n, ok := v.(TableNamer); ok {
			cfg.Table = n.TableName()
		}
	}
	if cfg.Table == "" {
		cfg.Table = t.Name() + "s"
	}
	return cfg
}

func matches(want string, c *Column) bool {
	return want != "" && (strings.EqualFold(want, c.Field) || strings.EqualFold(want, c.Alias))
}

type tagOptions struct {
	alias   string
	id      bool
	index   bool
	noauto  bool
	sqlType string
}

// parseTag supports "alias,id,index,noauto,type=<sql>". The alias may be empty.
func parseTag(tag string) (tagOptions, error) {
	var o tagOptions
	if tag == "" {
		return o, nil
	}
	parts := strings.Split(tag, ",")
	o.alias = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "id":
			o.id = true
		case p == "index":
			o.index = true
		case p == "noauto":
			o.noauto = true
		case strings.HasPrefix(p, "type="):
			o.sqlType = strings.TrimPrefix(p, "type=")
		default:
			return o, fmt.Errorf("%w: unknown db option %q", ErrBadTag, p)
		}
	}
	return o, nil
}

// parseRelation reads `join:"one,this=F[,other=col]"` or
// `join:"many[,this=F][,other=col]"`.
func parseRelation(owner reflect.Type, sf reflect.StructField, tag string) (*Relation, error) {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s.%s: %s", ErrBadTag, owner.Name(), sf.Name, fmt.Sprintf(format, args...))
	}
	parts := strings.Split(tag, ",")
	rel := &Relation{Field: sf.Name}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || v == "" {
			return nil, bad("option %q needs a value", p)
		}
		switch k {
		case "this":
			rel.ThisField = v
		case "other":
			rel.OtherField = v
		default:
			return nil, bad("unknown join option %q", k)
		}
	}
	if rel.ThisField != "" {
		if _, ok := owner.FieldByName(rel.ThisField); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, owner.Name(), rel.ThisField)
		}
	}

	ft := sf.Type
	switch strings.TrimSpace(parts[0]) {
	case "one":
		if rel.ThisField == "" {
			return nil, bad("a to-one join needs this=<field>")
		}
		if ft.Kind() != reflect.Pointer || ft.Elem().Kind() != reflect.Struct {
			return nil, bad("a to-one join field must be *struct, got %s", ft)
		}
		rel.Cardinality = One
		rel.Target = ft.Elem()
	case "many":
		switch {
		case ft.Implements(joinBinderType):
			rel.Cardinality = ManySet
			rel.Target = reflect.Zero(ft).Interface().(joinBinder).target()
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Pointer && ft.Elem().Elem().Kind() == reflect.Struct:
			rel.Cardinality = ManyList
			rel.Target = ft.Elem().Elem()
			rel.elemPtr = true
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Struct:
			rel.Cardinality = ManyList
			rel.Target = ft.Elem()
		default:
			return nil, bad("a to-many join field must be []*struct, []struct or *JoinSet, got %s", ft)
		}
	default:
		return nil, bad("cardinality must be one or many, got %q", parts[0])
	}
	return rel, nil
}

// ---------------- Lookups ----------------

// columnByField finds a column (id included) by Go field name.
func (m *Mapping) columnByField(field string) *Column {
	for _, c := range m.fields {
		if c.Field == field {
			return c
		}
	}
	for _, c := range m.fields {
		if strings.EqualFold(c.Field, field) {
			return c
		}
	}
	return nil
}

// columnByName finds a column by its SQL name, qualified or not.
func (m *Mapping) columnByName(name string) *Column {
	bare := unqualified(name)
	for _, c := range m.fields {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Alias, bare) {
			return c
		}
	}
	return nil
}

func (m *Mapping) relation(field string) *Relation {
	for _, r := range m.Relations {
		if r.Field == field {
			return r
		}
	}
	return nil
}

// key returns the column that identifies a row: the id, else the index.
func (m *Mapping) key() (*Column, error) {
	if m.ID != nil {
		return m.ID, nil
	}
	if m.Index != nil {
		return m.Index, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoKey, m.Table)
}

// countColumn is the column counted by COUNT: id, else index, else the first column.
func (m *Mapping) countColumn() string {
	switch {
	case m.ID != nil:
		return m.ID.Name
	case m.Index != nil:
		return m.Index.Name
	case len(m.Columns) > 0:
		return m.Columns[0].Name
	}
	return "*"
}

// likeColumn is the index column, else the first string column.
func (m *Mapping) likeColumn() string {
	if m.Index != nil {
		return m.Index.Name
	}
	for _, c := range m.Columns {
		if derefPtr(c.Type).Kind() == reflect.String {
			return c.Name
		}
	}
	return ""
}

// dateColumn is the first time.Time column.
func (m *Mapping) dateColumn() (*Column, error) {
	for _, c := range m.Columns {
		if derefPtr(c.Type) == timeType {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDateColumn, m.Table)
}

// ---------------- Field access ----------------

// fieldAt walks path from a struct value, allocating nil embedded pointers so
// the final field is settable.
func fieldAt(root reflect.Value, path []int) reflect.Value {
	v := root
	for n, i := range path {
		if n > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

// fieldValue walks path without allocating; ok is false when an embedded
// pointer on the way is nil.
func fieldValue(root reflect.Value, path []int) (reflect.Value, bool) {
	v := root
	for n, i := range path {
		if n > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}

// valueOf returns the column value of a record as an interface, nil for a
// field behind a nil embedded pointer.
func valueOf(rec reflect.Value, c *Column) any {
	v, ok := fieldValue(rec, c.Index)
	if !ok {
		return nil
	}
	return v.Interface()
}

func isStruct(t reflect.Type) bool { return derefPtr(t).Kind() == reflect.Struct }

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

func implementsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}
