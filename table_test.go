package xtable

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Customer struct {
	ID      int            `db:",id"`
	Name    string         `db:"CustomerName,index"`
	ZipCode int            `db:""`
	Joined  time.Time      `db:""`
	Orders  []*Order       `join:"many,other=CustomerID"`
	Notes   *JoinSet[Note] `join:"many,other=CustomerID"`
}

type Order struct {
	ID         int       `db:",id"`
	CustomerID int       `db:""`
	Total      float64   `db:""`
	Customer   *Customer `join:"one,this=CustomerID"`
}

type Note struct {
	ID         int    `db:",id"`
	CustomerID int    `db:""`
	Text       string `db:""`
}

var (
	customerCols   = []string{"CustomerName", "ZipCode", "Joined", "ID"}
	customerSelect = "SELECT Customers.[CustomerName],ZipCode,Joined, ID FROM Customers"
	joined         = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func customerTable(t *testing.T, f *fakeDB, opts ...Option) *Table[Customer] {
	t.Helper()
	customers, err := TableOf[Customer](newFakeSource(t, f, opts...))
	require.NoError(t, err)
	return customers
}

func TestTable_Insert(t *testing.T) {
	f := newFakeDB().on("SELECT @@IDENTITY", []string{""}, row(int64(7)))
	customers := customerTable(t, f)

	r, err := customers.Insert(context.Background(), &Customer{Name: "Jerome", ZipCode: 1000, Joined: joined})
	require.NoError(t, err)
	assert.Equal(t, 7, r.Record.ID)
	assert.Equal(t, StateConnected, r.State)
	assert.Equal(t, []string{
		"INSERT INTO Customers ( [CustomerName],ZipCode,Joined ) VALUES ('Jerome', 1000, '2020-01-01 00:00:00');",
		"SELECT @@IDENTITY;",
	}, f.log())
	assert.Empty(t, r.Changed())
}

func TestTable_InsertWithoutIdentity(t *testing.T) {
	customers := customerTable(t, newFakeDB())
	_, err := customers.Insert(context.Background(), &Customer{Name: "Jerome"})
	assert.Error(t, err)
}

func TestTable_SmartUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().on("SELECT ", customerCols, row("Jerome", int64(1000), joined, int64(7)))
	customers := customerTable(t, f)

	jerome, err := customers.ByIndex(ctx, "Jerome")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SELECT TOP 1 Customers.[CustomerName],ZipCode,Joined, ID FROM Customers WHERE Customers.[CustomerName] = 'Jerome';",
	}, f.log())
	require.NotNil(t, jerome.Record.Notes)
	assert.Equal(t, 7, jerome.Record.Notes.OnValue())

	f.reset()
	jerome.Record.ZipCode++
	assert.Equal(t, []string{"ZipCode"}, jerome.Changed())
	changed, known := jerome.DidFieldChange("ZipCode")
	assert.True(t, changed)
	assert.True(t, known)

	require.NoError(t, jerome.Update(ctx))
	assert.Equal(t, []string{"UPDATE Customers SET ZipCode = 1001 WHERE ID=7;"}, f.log())

	f.reset()
	require.NoError(t, customers.Update(ctx, jerome))
	assert.Empty(t, f.log())
}

func TestTable_SmartUpdatesOff(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().on("SELECT ", customerCols, row("Jerome", int64(1000), joined, int64(7)))
	customers := customerTable(t, f, WithSmartUpdates(false))

	jerome, err := customers.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, jerome.Snapshot)
	_, known := jerome.DidFieldChange("ZipCode")
	assert.False(t, known)

	f.reset()
	require.NoError(t, jerome.Update(ctx))
	assert.Equal(t, []string{
		"UPDATE Customers SET [CustomerName] = 'Jerome', ZipCode = 1000, Joined = '2020-01-01 00:00:00' WHERE ID=7;",
	}, f.log())
}

func TestTable_Get(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB()
	customers := customerTable(t, f)

	_, err := customers.Get(ctx, 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, []string{
		"SELECT TOP 1 Customers.[CustomerName],ZipCode,Joined, ID FROM Customers WHERE ID = 99;",
	}, f.log())
}

func TestTable_DeleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().on("SELECT ", customerCols, row("Jerome", int64(1000), joined, int64(7)))
	customers := customerTable(t, f)

	jerome, err := customers.Get(ctx, 7)
	require.NoError(t, err)
	f.reset()

	ok, err := jerome.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateDeleted, jerome.State)
	assert.Equal(t, []string{"DELETE FROM Customers WHERE ID=7;"}, f.log())

	f.reset()
	ok, err = jerome.Delete(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDeleted)
	assert.ErrorIs(t, jerome.Update(ctx), ErrDeleted)
	assert.ErrorIs(t, jerome.UpdateOrInsert(ctx), ErrDeleted)
	assert.ErrorIs(t, customers.SetByIndex(ctx, "Jerome", jerome), ErrDeleted)
	assert.Empty(t, f.log())
}

func TestTable_NewRecordIsNotConnected(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB()
	customers := customerTable(t, f)

	r := customers.New(&Customer{Name: "Ann"})
	assert.Equal(t, StateNew, r.State)
	assert.ErrorIs(t, r.Update(ctx), ErrNotConnected)
	_, err := r.Delete(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, r.FillJoins(ctx), ErrNotConnected)
	assert.Empty(t, f.log())

	f.on("SELECT @@IDENTITY", []string{""}, row(int64(3)))
	require.NoError(t, r.UpdateOrInsert(ctx))
	assert.Equal(t, 3, r.Record.ID)
	assert.Equal(t, StateConnected, r.State)
}

type Product struct {
	Code  string  `db:",id,noauto"`
	Price float64 `db:""`
	Qty   int     `db:""`
}

func TestTable_ManualID(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB()
	src := newFakeSource(t, f)
	products, err := TableOf[Product](src)
	require.NoError(t, err)

	r, err := products.InsertWithID(ctx, &Product{Code: "A1", Price: 2.5})
	require.NoError(t, err)
	assert.Equal(t, StateConnected, r.State)
	assert.Equal(t, []string{"INSERT INTO Products ( Code,Price ) VALUES ('A1', 2.5);"}, f.log())

	customers, err := TableOf[Customer](src)
	require.NoError(t, err)
	_, err = customers.InsertWithID(ctx, &Customer{ID: 5})
	assert.ErrorIs(t, err, ErrManualID)

	f.reset()
	dumb := newFakeSource(t, f, WithSmartUpdates(false))
	products, err = TableOf[Product](dumb)
	require.NoError(t, err)
	_, err = products.Insert(ctx, &Product{Code: "B2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT INTO Products ( Code,Price,Qty ) VALUES ('B2', 0, 0);"}, f.log())
}

func TestTable_UpdateRecordWritesEverything(t *testing.T) {
	f := newFakeDB()
	customers := customerTable(t, f)

	err := customers.UpdateRecord(context.Background(), &Customer{ID: 7, Name: "J", ZipCode: 5, Joined: joined})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"UPDATE Customers SET [CustomerName] = 'J', ZipCode = 5, Joined = '2020-01-01 00:00:00' WHERE ID=7;",
	}, f.log())
}

type Tag struct {
	Name string `db:",index"`
	Hits int    `db:""`
}

func TestTable_IndexKeyed(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().on("SELECT TOP 1 Name,Hits FROM Tags", []string{"Name", "Hits"}, row("go", int64(3)))
	tags, err := TableOf[Tag](newFakeSource(t, f))
	require.NoError(t, err)

	r, err := tags.ByIndex(ctx, "go")
	require.NoError(t, err)
	r.Record.Name = "golang"
	r.Record.Hits++

	f.reset()
	require.NoError(t, r.Update(ctx))
	assert.Equal(t, []string{"UPDATE Tags SET Name = 'golang', Hits = 4 WHERE Name='go';"}, f.log())

	// the renamed row is now keyed by its new name
	f.reset()
	r.Record.Hits++
	require.NoError(t, r.Update(ctx))
	assert.Equal(t, []string{"UPDATE Tags SET Hits = 5 WHERE Name='golang';"}, f.log())

	_, err = tags.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoKey)
	_, err = tags.IDs(ctx, false)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestTable_SetByIndex(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().on("SELECT ", customerCols, row("Jerome", int64(1000), joined, int64(7)))
	customers := customerTable(t, f)

	r, err := customers.Get(ctx, 7)
	require.NoError(t, err)
	f.reset()
	require.NoError(t, customers.SetByIndex(ctx, "Jerry", r))
	assert.Equal(t, []string{
		"UPDATE Customers SET [CustomerName] = 'Jerome', ZipCode = 1000, Joined = '2020-01-01 00:00:00' WHERE Customers.[CustomerName]='Jerry';",
	}, f.log())

	f.reset()
	f.on("SELECT @@IDENTITY", []string{""}, row(int64(8)))
	n := customers.New(&Customer{Name: "Jerry"})
	require.NoError(t, customers.SetByIndex(ctx, "Jerry", n))
	assert.Equal(t, 8, n.Record.ID)
}

func TestTable_InsertBulk(t *testing.T) {
	f := newFakeDB()
	customers := customerTable(t, f)

	err := customers.InsertBulk(context.Background(), []*Customer{
		{Name: "A", ZipCode: 1, Joined: joined},
		{Name: "B", ZipCode: 2, Joined: joined},
	})
	require.NoError(t, err)

	q := "INSERT INTO Customers ( [CustomerName],ZipCode,Joined ) VALUES (@p1, @p2, @p3);"
	assert.Equal(t, []string{q, q}, f.log())
	require.Len(t, f.args, 2)
	assert.Equal(t, "B", f.args[1][0].Value)
	assert.Equal(t, int64(2), f.args[1][1].Value)

	f.reset()
	require.NoError(t, customers.InsertBulk(context.Background(), nil))
	assert.Empty(t, f.log())
}

func TestBulkArg(t *testing.T) {
	n := 4
	var nilp *int
	assert.Equal(t, 4, bulkArg(&n))
	assert.Nil(t, bulkArg(nilp))
	assert.Nil(t, bulkArg(nil))
	assert.Equal(t, "x", bulkArg("x"))
}

func TestTable_DeleteHelpers(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB()
	customers := customerTable(t, f)

	ok, err := customers.DeleteByID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = customers.DeleteByIndex(ctx, "Jerome")
	require.NoError(t, err)
	_, err = customers.Clear(ctx)
	require.NoError(t, err)

	f.affected = 0
	ok, err = customers.DeleteByID(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{
		"DELETE FROM Customers WHERE ID=7;",
		"DELETE FROM Customers WHERE Customers.[CustomerName]='Jerome';",
		"DELETE FROM Customers;",
		"DELETE FROM Customers WHERE ID=8;",
	}, f.log())
}

func TestTable_Reads(t *testing.T) {
	ctx := context.Background()
	f := newFakeDB().
		on("SELECT ", customerCols,
			row("Jerome", int64(1000), joined, int64(7)),
			row("Jerry", int64(2000), joined, int64(8))).
		on("SELECT COUNT(", []string{""}, row(int64(2))).
		on("SELECT ID FROM", []string{"ID"}, row(int64(7)), row(int64(8))).
		on("SELECT distinct", []string{"CustomerName"}, row("Jerome"), row([]byte("Jerry"))).
		on("SELECT SUM(", []string{""}, row(float64(3000)))
	customers := customerTable(t, f)

	list, err := customers.SelectList(ctx, 0, "ZipCode > 0", "ZipCode desc")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Jerry", list[1].Record.Name)

	var n int
	for r, err := range customers.Select(ctx, 5, "", "") {
		require.NoError(t, err)
		require.NotNil(t, r)
		n++
	}
	assert.Equal(t, 2, n)

	likes, err := customers.LikeList(ctx, "Jer")
	require.NoError(t, err)
	assert.Len(t, likes, 2)

	byZip, err := customers.ByFieldFirst(ctx, "ZipCode", 1000)
	require.NoError(t, err)
	assert.Equal(t, 7, byZip.Record.ID)
	_, err = customers.ByField(ctx, "Nope", 1)
	assert.ErrorIs(t, err, ErrUnknownField)

	count, err := customers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	_, err = customers.CountQuery(ctx, "ZipCode > 1500")
	require.NoError(t, err)

	sum, err := customers.Sum(ctx, "ZipCode", "ID > 0")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, sum)

	ids, err := customers.IDs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ids)

	names, err := DistinctValues[string](ctx, customers, "Name", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jerome", "Jerry"}, names)

	assert.Equal(t, []string{
		customerSelect + " WHERE ZipCode > 0 ORDER BY ZipCode desc;",
		"SELECT TOP 5 Customers.[CustomerName],ZipCode,Joined, ID FROM Customers;",
		customerSelect + " WHERE Customers.[CustomerName] LIKE 'Jer%';",
		"SELECT TOP 1 Customers.[CustomerName],ZipCode,Joined, ID FROM Customers WHERE ZipCode = 1000;",
		"SELECT COUNT(ID) FROM Customers;",
		"SELECT COUNT(ID) FROM Customers WHERE ZipCode > 1500;",
		"SELECT SUM(ZipCode) FROM Customers WHERE ID > 0;",
		"SELECT ID FROM Customers ORDER BY ID asc;",
		"SELECT distinct Customers.[CustomerName] FROM Customers ORDER BY Customers.[CustomerName] asc;",
	}, f.log())
}

func TestTable_LikeWithoutColumn(t *testing.T) {
	type Counter struct {
		ID int `db:",id"`
		N  int `db:""`
	}
	counters, err := TableOf[Counter](newFakeSource(t, newFakeDB()))
	require.NoError(t, err)
	assert.Equal(t, "1=0", counters.Like("x").Descriptor().Where)

	_, err = counters.LikeList(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestTable_Dates(t *testing.T) {
	ctx := context.Background()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeDB()
	customers := customerTable(t, f)

	set, err := customers.AtDateSet(jan)
	require.NoError(t, err)
	assert.Equal(t, customerSelect+" WHERE Joined='2024-01-01';", set.SQL())

	where, err := customers.DateRangeCriteria(jan, end)
	require.NoError(t, err)
	assert.Equal(t, "Joined between '2024-01-01' and '2024-01-31'", where)

	rng, err := customers.DateRangeSet(jan, end)
	require.NoError(t, err)
	assert.Equal(t, where, rng.Descriptor().Where)

	_, err = customers.DeleteByDateRange(ctx, jan, end)
	require.NoError(t, err)

	_, ok, err := customers.FirstDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	f.on("SELECT TOP 1 Joined", []string{"Joined"}, row(end))
	last, ok, err := customers.LastDate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, end.Equal(last))

	_, err = customers.AtDateFirst(ctx, jan)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.Equal(t, []string{
		"DELETE FROM Customers WHERE Joined between '2024-01-01' and '2024-01-31';",
		"SELECT TOP 1 Joined FROM Customers ORDER BY Joined;",
		"SELECT TOP 1 Joined FROM Customers ORDER BY Joined DESC;",
		"SELECT TOP 1 Customers.[CustomerName],ZipCode,Joined, ID FROM Customers WHERE Joined='2024-01-01';",
	}, f.log())

	tags, err := TableOf[Tag](customers.Source())
	require.NoError(t, err)
	_, _, err = tags.FirstDate(ctx)
	assert.ErrorIs(t, err, ErrNoDateColumn)
}
