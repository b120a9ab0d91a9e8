package xtable

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tablesPrefix = "SELECT table_name"

func TestCreateAndDropTable(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	f := newFakeDB()
	customers, err := TableOf[Customer](newFakeSource(t, f, WithLogger(captureLogger(&buf))))
	require.NoError(t, err)

	require.NoError(t, customers.CreateTable(ctx))
	require.NoError(t, customers.DropTable(ctx))
	assert.Equal(t, []string{
		"CREATE TABLE Customers(ID int PRIMARY KEY IDENTITY, [CustomerName] nvarchar(100), ZipCode int NOT NULL, Joined datetime NOT NULL);",
		"CREATE INDEX index_Customers_CustomerName ON Customers([CustomerName]);",
		"DROP TABLE Customers;",
	}, f.log())
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "op=ddl")
	assert.Contains(t, buf.String(), "table=Customers")
}

func TestExistsAndColumnNames(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().
		on(tablesPrefix, []string{"table_name"}, row("customers")).
		on("SELECT TOP 1 *", []string{"ID", "CustomerName", "ZipCode", "Joined"})
	customers := customerTable(t, f)

	ok, err := customers.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := customers.ColumnNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "CustomerName", "ZipCode", "Joined"}, names)
	assert.Zero(t, customers.Source().openReaders())
	assert.Contains(t, f.log(), "SELECT TOP 1 * FROM Customers;")
}

func TestVerifyColumns_MissingTable(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().on(tablesPrefix, []string{"table_name"}, row("Orders"))
	customers := customerTable(t, f)

	added, err := customers.VerifyColumns(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, added)
	assert.Len(t, f.log(), 1)

	f.reset()
	added, err = customers.VerifyColumns(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "CustomerName", "ZipCode", "Joined"}, added)
	log := f.log()
	require.Len(t, log, 3)
	assert.Equal(t, "CREATE INDEX index_Customers_CustomerName ON Customers([CustomerName]);", log[2])
}

func TestVerifyColumns_AddsMissing(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().
		on(tablesPrefix, []string{"table_name"}, row("Customers")).
		on("SELECT TOP 1 *", []string{"ID", "customername"})
	customers := customerTable(t, f)

	added, err := customers.VerifyColumns(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ZipCode", "Joined"}, added)
	assert.Equal(t, []string{
		"SELECT table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE';",
		"SELECT TOP 1 * FROM Customers;",
		"ALTER TABLE Customers ADD ZipCode int;",
		"ALTER TABLE Customers ADD Joined datetime;",
	}, f.log())
}

func TestCreateTable_DuckDB(t *testing.T) {
	f := newFakeDB()
	notes, err := TableOf[Note](newFakeSourceDialect(t, f, DuckDB))
	require.NoError(t, err)
	require.NoError(t, notes.CreateTable(context.Background()))
	assert.Equal(t, []string{
		"CREATE SEQUENCE IF NOT EXISTS seq_notes START 1;",
		"CREATE TABLE Notes(ID INTEGER PRIMARY KEY DEFAULT nextval('seq_notes'), CustomerID INTEGER NOT NULL, Text VARCHAR);",
	}, f.log())
}
