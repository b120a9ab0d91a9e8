package xtable

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// materialize builds a new *T for mapping m from a row, reading m.width()
// values starting at start. Join sets are not instantiated here.
func (s *DataSource) materialize(m *Mapping, values []any, start int) (reflect.Value, error) {
	if len(values) < start+m.width() {
		return reflect.Value{}, fmt.Errorf("xtable: %s: row has %d columns, need %d", m.Table, len(values)-start, m.width())
	}
	rec := reflect.New(m.Type)
	root := rec.Elem()
	at := start
	for _, c := range m.Columns {
		if err := s.setColumn(m, c, root, values[at]); err != nil {
			return reflect.Value{}, err
		}
		at++
	}
	if m.ID != nil {
		if err := s.setColumn(m, m.ID, root, values[at]); err != nil {
			return reflect.Value{}, err
		}
	}
	return rec, nil
}

// project fills a *T by position from an ad hoc column list.
func (s *DataSource) project(t reflect.Type, cols []*Column, values []any) (reflect.Value, error) {
	rec := reflect.New(t)
	root := rec.Elem()
	for i, c := range cols {
		if i >= len(values) {
			break
		}
		if err := s.setColumn(nil, c, root, values[i]); err != nil {
			return reflect.Value{}, err
		}
	}
	return rec, nil
}

func (s *DataSource) setColumn(m *Mapping, c *Column, root reflect.Value, raw any) error {
	dst := fieldAt(root, c.Index)
	err := assign(dst, raw)
	if err == nil {
		return nil
	}
	dst.Set(reflect.Zero(dst.Type()))
	if s.cfg.strict {
		return err
	}
	l := s.log
	if m != nil {
		l = s.withTable(m.Table)
	}
	l.Warn("column value left at zero", "column", c.Alias, "field", c.Field, "error", err)
	return nil
}

// assign stores a driver value into dst, converting where a lossless or
// conventional conversion exists. NULL yields the zero value (nil for pointers).
func assign(dst reflect.Value, raw any) error {
	if raw == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() && implementsScanner(dst.Type()) {
		return dst.Addr().Interface().(interface{ Scan(any) error }).Scan(raw)
	}
	if dst.Kind() == reflect.Pointer {
		v := reflect.New(dst.Type().Elem())
		if err := assign(v.Elem(), raw); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Type() == dst.Type() && !isBytes(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if dst.Type() == timeType {
		t, err := asTime(raw)
		if err != nil {
			return conversionError(raw, dst.Type(), err)
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(asString(raw))
		return nil
	case reflect.Bool:
		b, err := asBool(raw)
		if err != nil {
			return conversionError(raw, dst.Type(), err)
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt64(raw)
		if err != nil {
			return conversionError(raw, dst.Type(), err)
		}
		if dst.OverflowInt(n) {
			return conversionError(raw, dst.Type(), strconv.ErrRange)
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt64(raw)
		if err != nil {
			return conversionError(raw, dst.Type(), err)
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return conversionError(raw, dst.Type(), strconv.ErrRange)
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := asFloat64(raw)
		if err != nil {
			return conversionError(raw, dst.Type(), err)
		}
		if dst.OverflowFloat(f) {
			return conversionError(raw, dst.Type(), strconv.ErrRange)
		}
		dst.SetFloat(f)
		return nil
	case reflect.Slice:
		if isBytes(dst.Type()) {
			var b []byte
			switch x := raw.(type) {
			case []byte:
				b = bytes.Clone(x)
			case string:
				b = []byte(x)
			default:
				return conversionError(raw, dst.Type(), nil)
			}
			dst.SetBytes(b)
			return nil
		}
	}
	if rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	return conversionError(raw, dst.Type(), nil)
}

// Drivers may reuse the buffers behind []byte values, so byte slices are
// always copied.
func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func conversionError(raw any, to reflect.Type, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %T %v into %s: %v", ErrConversion, raw, raw, to, cause)
	}
	return fmt.Errorf("%w: %T %v into %s", ErrConversion, raw, raw, to)
}

// Big numeric driver values (HUGEINT, DECIMAL) expose one of these.
type (
	floater  interface{ Float64() float64 }
	stringer interface{ String() string }
)

func asString(raw any) string {
	switch x := raw.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(SQLTimeLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(raw)
}

func asInt64(raw any) (int64, error) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, strconv.ErrRange
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	switch x := raw.(type) {
	case []byte:
		return parseInt(string(x))
	case string:
		return parseInt(x)
	case floater:
		return floatToInt(x.Float64())
	case stringer:
		return parseInt(x.String())
	}
	return 0, fmt.Errorf("not a number")
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return floatToInt(f)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not integral", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, strconv.ErrRange
	}
	return int64(f), nil
}

func asFloat64(raw any) (float64, error) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	switch x := raw.(type) {
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case floater:
		return x.Float64(), nil
	case stringer:
		return strconv.ParseFloat(strings.TrimSpace(x.String()), 64)
	}
	return 0, fmt.Errorf("not a number")
}

func asBool(raw any) (bool, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case string:
		return parseBool(x)
	case []byte:
		return parseBool(string(x))
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	}
	return false, fmt.Errorf("not a boolean")
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "y", "yes":
		return true, nil
	case "0", "false", "f", "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}

var timeLayouts = []string{
	SQLTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func asTime(raw any) (time.Time, error) {
	var s string
	switch x := raw.(type) {
	case time.Time:
		return x, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		rv := reflect.ValueOf(raw)
		if rv.Type().ConvertibleTo(timeType) {
			return rv.Convert(timeType).Interface().(time.Time), nil
		}
		return time.Time{}, fmt.Errorf("not a time")
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ---------------- Snapshots ----------------

// Snapshot holds the column values of a record as last read from or written
// to storage, keyed by column name.
type Snapshot map[string]any

func capture(m *Mapping, rec reflect.Value) Snapshot {
	snap := make(Snapshot, len(m.Columns))
	root := rec.Elem()
	for _, c := range m.Columns {
		snap[c.Name] = snapshotValue(root, c)
	}
	return snap
}

// snapshotValue dereferences pointers and copies byte slices, so later edits
// to the record never reach the snapshot.
func snapshotValue(root reflect.Value, c *Column) any {
	v, ok := fieldValue(root, c.Index)
	if !ok {
		return nil
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		if v.IsNil() {
			return []byte(nil)
		}
		return bytes.Clone(v.Bytes())
	}
	return v.Interface()
}

// sameValue compares a snapshot value with a current one.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ba, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ba, bb)
	}
	return reflect.DeepEqual(a, b)
}
