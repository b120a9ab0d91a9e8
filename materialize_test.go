package xtable

import (
	"bytes"
	"database/sql"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignTo[T any](t *testing.T, raw any) (T, error) {
	t.Helper()
	var v T
	err := assign(reflect.ValueOf(&v).Elem(), raw)
	return v, err
}

func TestAssign_Numbers(t *testing.T) {
	n, err := assignTo[int32](t, int64(12))
	require.NoError(t, err)
	assert.Equal(t, int32(12), n)

	_, err = assignTo[int8](t, int64(300))
	assert.ErrorIs(t, err, ErrConversion)

	_, err = assignTo[uint](t, int64(-1))
	assert.ErrorIs(t, err, ErrConversion)

	f, err := assignTo[float32](t, "1.5")
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	i, err := assignTo[int](t, 4.0)
	require.NoError(t, err)
	assert.Equal(t, 4, i)

	_, err = assignTo[int](t, 4.5)
	assert.ErrorIs(t, err, ErrConversion)

	i64, err := assignTo[int64](t, []byte(" 77 "))
	require.NoError(t, err)
	assert.Equal(t, int64(77), i64)

	// big numerics expose Float64 or String
	big1, err := assignTo[int64](t, big.NewInt(123456))
	require.NoError(t, err)
	assert.Equal(t, int64(123456), big1)
}

func TestAssign_Bool(t *testing.T) {
	for raw, want := range map[any]bool{
		int64(1): true, int64(0): false, "True": true, "f": false, float64(2): true,
	} {
		b, err := assignTo[bool](t, raw)
		require.NoError(t, err, "%#v", raw)
		assert.Equal(t, want, b, "%#v", raw)
	}
	_, err := assignTo[bool](t, "maybe")
	assert.ErrorIs(t, err, ErrConversion)
}

func TestAssign_StringsAndBytes(t *testing.T) {
	s, err := assignTo[string](t, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	s, err = assignTo[string](t, int64(5))
	require.NoError(t, err)
	assert.Equal(t, "5", s)

	src := []byte("xyz")
	b, err := assignTo[[]byte](t, src)
	require.NoError(t, err)
	src[0] = 'X'
	assert.Equal(t, []byte("xyz"), b)

	l, err := assignTo[label](t, "named")
	require.NoError(t, err)
	assert.Equal(t, label("named"), l)
}

func TestAssign_Time(t *testing.T) {
	want := time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)
	for _, raw := range []any{want, "2024-02-29 08:00:00", "2024-02-29T08:00:00Z", []byte("2024-02-29 08:00:00")} {
		got, err := assignTo[time.Time](t, raw)
		require.NoError(t, err, "%#v", raw)
		assert.True(t, want.Equal(got), "%#v gave %v", raw, got)
	}
	d, err := assignTo[time.Time](t, "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())

	_, err = assignTo[time.Time](t, "yesterday")
	assert.ErrorIs(t, err, ErrConversion)
}

func TestAssign_PointersScannersAndNull(t *testing.T) {
	p, err := assignTo[*int](t, int64(9))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 9, *p)

	p, err = assignTo[*int](t, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	ns, err := assignTo[sql.NullString](t, "v")
	require.NoError(t, err)
	assert.Equal(t, sql.NullString{String: "v", Valid: true}, ns)

	ns, err = assignTo[sql.NullString](t, nil)
	require.NoError(t, err)
	assert.False(t, ns.Valid)

	z, err := assignTo[int](t, nil)
	require.NoError(t, err)
	assert.Zero(t, z)
}

func TestMaterialize_Customer(t *testing.T) {
	src := newFakeSource(t, newFakeDB())
	m, err := src.MappingOf(Customer{})
	require.NoError(t, err)

	joined := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec, err := src.materialize(m, []any{"skip", "Jerome", int64(1000), joined, int64(7)}, 1)
	require.NoError(t, err)
	c := rec.Interface().(*Customer)
	assert.Equal(t, Customer{ID: 7, Name: "Jerome", ZipCode: 1000, Joined: joined}, *c, spew.Sdump(c))

	_, err = src.materialize(m, []any{"Jerome", int64(1000)}, 0)
	assert.Error(t, err)
}

func TestMaterialize_ConversionFallback(t *testing.T) {
	var buf bytes.Buffer
	src := newFakeSource(t, newFakeDB(), WithLogger(captureLogger(&buf)))
	m, err := src.MappingOf(Customer{})
	require.NoError(t, err)

	rec, err := src.materialize(m, []any{"Jerome", "not a number", nil, int64(7)}, 0)
	require.NoError(t, err)
	c := rec.Interface().(*Customer)
	assert.Zero(t, c.ZipCode)
	assert.Equal(t, 7, c.ID)
	assert.Contains(t, buf.String(), "column value left at zero")
	assert.Contains(t, buf.String(), "table=Customers")

	strict := newFakeSource(t, newFakeDB(), WithStrictConversions(true))
	m, err = strict.MappingOf(Customer{})
	require.NoError(t, err)
	_, err = strict.materialize(m, []any{"Jerome", "not a number", nil, int64(7)}, 0)
	assert.ErrorIs(t, err, ErrConversion)
}

func TestSnapshot_CaptureAndCompare(t *testing.T) {
	type Rec struct {
		ID    int       `db:",id"`
		Ptr   *int      `db:""`
		Blob  []byte    `db:""`
		When  time.Time `db:""`
		Label string    `db:""`
	}
	m, err := Bind(reflect.TypeFor[Rec](), nil)
	require.NoError(t, err)

	n := 5
	r := &Rec{ID: 1, Ptr: &n, Blob: []byte("ab"), When: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Label: "x"}
	snap := capture(m, reflect.ValueOf(r))
	assert.NotContains(t, snap, "ID")
	assert.Equal(t, 5, snap["Ptr"])

	root := reflect.ValueOf(r).Elem()
	same := func(field string) bool {
		c := m.columnByField(field)
		return sameValue(snap[c.Name], snapshotValue(root, c))
	}

	n = 6 // pointee changed through the pointer
	assert.False(t, same("Ptr"))
	r.Blob[0] = 'A'
	assert.False(t, same("Blob"))
	r.When = r.When.In(time.FixedZone("x", 3600))
	assert.True(t, same("When"))
	assert.True(t, same("Label"))

	r.Ptr = nil
	assert.False(t, same("Ptr"))
	assert.True(t, sameValue(nil, nil))
}

func TestProject_ByPosition(t *testing.T) {
	src := newFakeSource(t, newFakeDB())
	type Pair struct {
		A string
		B int
	}
	cols, err := src.reg.projection(reflect.TypeFor[Pair](), false)
	require.NoError(t, err)
	rec, err := src.project(reflect.TypeFor[Pair](), cols, []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, &Pair{A: "x"}, rec.Interface())
}
