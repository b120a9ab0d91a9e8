package xtable

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SQLTimeLayout is the literal form of time.Time values in generated SQL.
const SQLTimeLayout = "2006-01-02 15:04:05"

// ValueToSQL renders v as an SQL literal for inlining into statement text.
//
// Rules:
//   - nil (and nil pointers) → NULL
//   - strings → single-quoted, internal quotes doubled
//   - bool → 1 / 0
//   - time.Time → '2006-01-02 15:04:05', in UTC
//   - driver.Valuer → its Value, rendered by the same rules; a Value error
//     renders NULL (statement builders report it instead)
//   - numbers → plain decimal text (floats never use exponent notation)
//   - anything else → fmt.Sprint
//
// ValueToSQL is for values owned by records. Criteria fragments supplied by a
// caller are inserted verbatim and are never escaped.
func ValueToSQL(v any) string {
	lit, _ := literal(v)
	return lit
}

func literal(v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch x := v.(type) {
	case string:
		return quoteString(x), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return "'" + x.UTC().Format(SQLTimeLayout) + "'", nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case []byte:
		return quoteString(string(x)), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "NULL", nil
		}
		if _, ok := v.(driver.Valuer); !ok {
			return literal(rv.Elem().Interface())
		}
	}
	if dv, ok := v.(driver.Valuer); ok {
		val, err := dv.Value()
		if err != nil {
			return "NULL", fmt.Errorf("value of %T: %w", v, err)
		}
		return literal(val)
	}

	switch rv.Kind() {
	case reflect.String:
		return quoteString(rv.String()), nil
	case reflect.Bool:
		return literal(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return literal(rv.Convert(timeType).Interface())
		}
	}
	return fmt.Sprint(v), nil
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
