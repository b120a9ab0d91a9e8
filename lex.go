package xtable

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder selects the positional parameter style for a target database.
// Only bulk inserts use parameters; every other statement carries literals.
//
// Common choices:
//   - PlaceholderQuestion   → "?"           (MySQL, SQLite, DuckDB, Access)
//   - PlaceholderDollar     → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderAtP        → "@p1, @p2…"  (SQL Server)
//   - PlaceholderColonNum   → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

// rewritePlaceholders rewrites every '?' outside quotes and comments into ph.
func rewritePlaceholders(query string, ph Placeholder) string {
	if ph == PlaceholderQuestion {
		return query
	}
	out := make([]byte, 0, len(query)+16)
	arg := 1
	walkSQL(query, func(i, w int, r rune, quoted bool) {
		if quoted || r != '?' {
			out = append(out, query[i:i+w]...)
			return
		}
		switch ph {
		case PlaceholderDollar:
			out = append(out, '$')
		case PlaceholderAtP:
			out = append(out, '@', 'p')
		case PlaceholderColonNum:
			out = append(out, ':')
		}
		out = strconv.AppendInt(out, int64(arg), 10)
		arg++
	})
	return string(out)
}

// walkSQL calls fn for every rune of query. Runs inside string literals,
// quoted identifiers and comments are reported as one quoted span.
func walkSQL(query string, fn func(i, w int, r rune, quoted bool)) {
	i := 0
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		j := -1
		switch r {
		case '\'':
			j, _ = skipQuoted(query, i+w, '\'')
		case '"':
			j, _ = skipQuoted(query, i+w, '"')
		case '`':
			j, _ = skipQuoted(query, i+w, '`')
		case '[':
			j, _ = skipBracketed(query, i+w)
		case '-':
			if hasPrefix(query[i:], "--") {
				j = skipLineComment(query, i+2)
			}
		case '/':
			if hasPrefix(query[i:], "/*") {
				j, _ = skipBlockComment(query, i+2)
			}
		}
		if j > i {
			fn(i, j-i, r, true)
			i = j
			continue
		}
		if j == 0 { // unterminated: the rest is quoted
			fn(i, len(query)-i, r, true)
			return
		}
		fn(i, w, r, false)
		i += w
	}
}

// trimStatement drops trailing whitespace and one trailing ';' outside quotes.
func trimStatement(query string) string {
	end := -1
	walkSQL(query, func(i, w int, r rune, quoted bool) {
		if !quoted && r == ';' {
			end = i
		}
	})
	if end >= 0 && strings.TrimSpace(query[end+1:]) == "" {
		query = query[:end]
	}
	return strings.TrimRightFunc(query, unicode.IsSpace)
}

// splitTop detects a leading "SELECT TOP n" and returns the statement without
// the TOP clause together with n.
func splitTop(query string) (string, int, bool) {
	s := strings.TrimLeftFunc(query, unicode.IsSpace)
	if len(s) < 7 || !strings.EqualFold(s[:6], "select") || !unicode.IsSpace(rune(s[6])) {
		return query, 0, false
	}
	rest := strings.TrimLeftFunc(s[6:], unicode.IsSpace)
	if len(rest) < 4 || !strings.EqualFold(rest[:3], "top") || !unicode.IsSpace(rune(rest[3])) {
		return query, 0, false
	}
	rest = strings.TrimLeftFunc(rest[3:], unicode.IsSpace)
	k := 0
	for k < len(rest) && rest[k] >= '0' && rest[k] <= '9' {
		k++
	}
	if k == 0 {
		return query, 0, false
	}
	n, err := strconv.Atoi(rest[:k])
	if err != nil {
		return query, 0, false
	}
	return s[:6] + " " + strings.TrimLeftFunc(rest[k:], unicode.IsSpace), n, true
}

func skipQuoted(s string, i int, q rune) (int, error) {
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		i += w
		if r == q {
			if i < len(s) && rune(s[i]) == q {
				i++
				continue
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("xtable: unterminated %c-quoted text", q)
}

func skipBracketed(s string, i int) (int, error) {
	if j := strings.IndexByte(s[i:], ']'); j >= 0 {
		return i + j + 1, nil
	}
	return 0, fmt.Errorf("xtable: unterminated bracketed identifier")
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) (int, error) {
	for i < len(s)-1 {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2, nil
		}
		i++
	}
	return 0, fmt.Errorf("xtable: unterminated block comment")
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }
