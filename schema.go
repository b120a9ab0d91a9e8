package xtable

import (
	"context"
	"strings"
)

// CreateTable creates the table of T with its index, using the dialect's
// column types. Statements run one at a time; a failure leaves the earlier
// ones applied.
func (t *Table[T]) CreateTable(ctx context.Context) error {
	for _, stmt := range t.m.createTable(t.src.dialect) {
		if _, err := t.src.exec(ctx, opDDL, t.m.Table, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DropTable drops the table of T.
func (t *Table[T]) DropTable(ctx context.Context) error {
	_, err := t.src.exec(ctx, opDDL, t.m.Table, "DROP TABLE "+t.m.Table+";")
	return err
}

// Exists reports whether the table of T is in the database catalog.
func (t *Table[T]) Exists(ctx context.Context) (bool, error) {
	return t.src.hasTable(ctx, t.m.Table)
}

// ColumnNames lists the columns the database reports for the table of T,
// probed with a TOP 1 select.
func (t *Table[T]) ColumnNames(ctx context.Context) (names []string, err error) {
	cur, err := t.src.ExecuteReader(ctx, buildSelect("*", t.m.Table, 1, "", ""))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := t.src.DisposeReader(cur); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return cur.Columns()
}

// VerifyColumns adds every column of T missing from its table with ALTER
// TABLE ... ADD and returns the aliases added. When the table does not exist
// it is created if createIfMissing is set, and otherwise nothing is done.
func (t *Table[T]) VerifyColumns(ctx context.Context, createIfMissing bool) ([]string, error) {
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !createIfMissing {
			return nil, nil
		}
		if err := t.CreateTable(ctx); err != nil {
			return nil, err
		}
		added := make([]string, len(t.m.fields))
		for i, c := range t.m.fields {
			added[i] = c.Alias
		}
		return added, nil
	}

	have, err := t.ColumnNames(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(have))
	for _, n := range have {
		present[strings.ToLower(n)] = true
	}
	var added []string
	for _, c := range t.m.fields {
		if present[strings.ToLower(c.Alias)] {
			continue
		}
		if _, err := t.src.exec(ctx, opDDL, t.m.Table, t.m.addColumn(t.src.dialect, c)); err != nil {
			return added, err
		}
		added = append(added, c.Alias)
	}
	return added, nil
}
