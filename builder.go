package xtable

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SQLFunc is an aggregate function usable in Function and Group.
type SQLFunc string

const (
	FuncAvg   SQLFunc = "AVG"
	FuncCount SQLFunc = "COUNT"
	FuncFirst SQLFunc = "FIRST"
	FuncLast  SQLFunc = "LAST"
	FuncMax   SQLFunc = "MAX"
	FuncMin   SQLFunc = "MIN"
	FuncSum   SQLFunc = "SUM"
)

// Statements are built in one shape, with TOP n and literal values; the
// dialect rewrites them before execution.

// selectList is "a,b, ID": the columns, then the id.
func (m *Mapping) selectList() string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	list := strings.Join(names, ",")
	if m.ID != nil {
		if list == "" {
			return m.ID.Name
		}
		list += ", " + m.ID.Name
	}
	return list
}

// qualifiedList is selectList with every column prefixed by the table name.
func (m *Mapping) qualifiedList() string {
	names := make([]string, 0, len(m.Columns)+1)
	for _, c := range m.Columns {
		names = append(names, qualify(m.Table, c.Name))
	}
	if m.ID != nil {
		names = append(names, qualify(m.Table, m.ID.Name))
	}
	return strings.Join(names, ",")
}

func (m *Mapping) width() int {
	if m.ID != nil {
		return len(m.Columns) + 1
	}
	return len(m.Columns)
}

// qualify prefixes col with table unless it is already qualified.
func qualify(table, col string) string {
	if strings.Contains(col, ".") {
		return col
	}
	return table + "." + col
}

func whereClause(criteria string) string {
	if strings.TrimSpace(criteria) == "" {
		return ""
	}
	return " WHERE " + criteria
}

// andCriteria combines two criteria fragments as "(a) and (b)".
func andCriteria(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return "(" + a + ") and (" + b + ")"
}

func buildSelect(fields, from string, top int, where, orderBy string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if top > 0 {
		sb.WriteString("TOP ")
		sb.WriteString(strconv.Itoa(top))
		sb.WriteByte(' ')
	}
	sb.WriteString(fields)
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	sb.WriteString(whereClause(where))
	if strings.TrimSpace(orderBy) != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	sb.WriteByte(';')
	return sb.String()
}

func buildInsert(table string, fields []string, values []any) (string, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" ( ")
	sb.WriteString(strings.Join(fields, ","))
	sb.WriteString(" ) VALUES (")
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		lit, err := literal(v)
		if err != nil {
			return "", fmt.Errorf("xtable: insert %s: value %d: %w", table, i, err)
		}
		sb.WriteString(lit)
	}
	sb.WriteString(");")
	return sb.String(), nil
}

// buildInsertParams is buildInsert with one '?' per field.
func buildInsertParams(table string, fields []string, ph Placeholder) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	q := "INSERT INTO " + table + " ( " + strings.Join(fields, ",") + " ) VALUES (" + marks + ");"
	return rewritePlaceholders(q, ph)
}

func buildUpdate(table, key string, keyValue any, fields []string, values []any) (string, error) {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		lit, err := literal(values[i])
		if err != nil {
			return "", fmt.Errorf("xtable: update %s: %s: %w", table, f, err)
		}
		sb.WriteString(f)
		sb.WriteString(" = ")
		sb.WriteString(lit)
	}
	lit, err := literal(keyValue)
	if err != nil {
		return "", fmt.Errorf("xtable: update %s: %s: %w", table, key, err)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(key)
	sb.WriteByte('=')
	sb.WriteString(lit)
	sb.WriteByte(';')
	return sb.String(), nil
}

func buildDelete(table, where string) string {
	return "DELETE FROM " + table + whereClause(where) + ";"
}

func buildFunction(fn SQLFunc, over, from, where string) string {
	return "SELECT " + string(fn) + "(" + over + ") FROM " + from + whereClause(where) + ";"
}

func buildGroup(by, extra string, fn SQLFunc, over, from, where, having string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(by)
	if extra != "" {
		sb.WriteString(", ")
		sb.WriteString(extra)
	}
	sb.WriteString(", ")
	sb.WriteString(string(fn))
	sb.WriteString("(")
	sb.WriteString(over)
	sb.WriteString(") FROM ")
	sb.WriteString(from)
	sb.WriteString(whereClause(where))
	sb.WriteString(" GROUP BY ")
	sb.WriteString(by)
	if extra != "" {
		sb.WriteString(", ")
		sb.WriteString(extra)
	}
	if strings.TrimSpace(having) != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(having)
	}
	sb.WriteByte(';')
	return sb.String()
}

// likeCriteria renders "col LIKE 'pattern'", appending % when the pattern has none.
func likeCriteria(col, pattern string) string {
	if !strings.Contains(pattern, "%") {
		pattern += "%"
	}
	return col + " LIKE " + ValueToSQL(pattern)
}

// ---------------- Joins ----------------

// JoinStep joins LeftTable to RightTable on LeftKey=RightKey. Steps form a
// chain through Next, one step per joined table after the first.
type JoinStep struct {
	LeftTable  string
	LeftKey    string
	RightTable string
	RightKey   string
	Next       *JoinStep
}

// From renders the FROM section of the chain starting at s:
//
//	A LEFT JOIN B ON A.ID=B.aID
//	(A LEFT JOIN B ON A.ID=B.aID) LEFT JOIN C ON B.ID=C.bID
func (s *JoinStep) From() string {
	var from string
	for st := s; st != nil; st = st.Next {
		on := qualify(st.LeftTable, st.LeftKey) + "=" + qualify(st.RightTable, st.RightKey)
		if st == s {
			from = st.LeftTable + " LEFT JOIN " + st.RightTable + " ON " + on
			continue
		}
		from = "(" + from + ") LEFT JOIN " + st.RightTable + " ON " + on
	}
	return from
}

// JoinOffsets turns per-table column counts into [start, end) ranges of a
// joined row: (2,3,1) gives [0,2) [2,5) [5,6).
func JoinOffsets(counts []int) [][2]int {
	out := make([][2]int, len(counts))
	at := 0
	for i, n := range counts {
		out[i] = [2]int{at, at + n}
		at += n
	}
	return out
}

// ---------------- DDL ----------------

func (m *Mapping) createTable(d Dialect) []string {
	var pre []string
	cols := make([]string, 0, len(m.fields))
	for _, c := range m.fields {
		def := c.bare + " "
		switch {
		case c.IsID && c.AutoIncrement:
			suffix, before := d.IdentityColumn(m.Table)
			pre = append(pre, before...)
			def += columnType(d, c) + suffix
		case c.IsID:
			def += columnType(d, c) + " PRIMARY KEY"
		default:
			def += columnType(d, c)
			if c.SQLType == "" && c.Type.Kind() != reflect.Pointer && c.Type.Kind() != reflect.String {
				def += d.NotNull()
			}
		}
		cols = append(cols, def)
	}
	stmts := append(pre, "CREATE TABLE "+m.Table+"("+strings.Join(cols, ", ")+");")
	if m.Index != nil {
		stmts = append(stmts, "CREATE INDEX index_"+m.Table+"_"+m.Index.Alias+" ON "+m.Table+"("+m.Index.bare+");")
	}
	return stmts
}

func columnType(d Dialect, c *Column) string {
	if c.SQLType != "" {
		return c.SQLType
	}
	return d.ColumnType(c.Type)
}

func (m *Mapping) addColumn(d Dialect, c *Column) string {
	return "ALTER TABLE " + m.Table + " ADD " + c.bare + " " + columnType(d, c) + ";"
}
