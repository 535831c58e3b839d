package schema

import (
	"context"
	"testing"

	"github.com/chrisberkhout/restful-geof/internal/testutil/pgfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogColumns = []string{"column_name", "udt_name"}

func catalog(rows ...[2]string) pgfake.Result {
	r := pgfake.Result{Columns: catalogColumns}
	for _, row := range rows {
		r.Rows = append(r.Rows, []any{row[0], row[1]})
	}
	return r
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		udt  string
		want Kind
	}{
		{"integer", KindInteger},
		{"int", KindInteger},
		{"smallint", KindInteger},
		{"bigint", KindInteger},
		{"int2", KindInteger},
		{"int4", KindInteger},
		{"int8", KindInteger},
		{"numeric", KindOther},
		{"float8", KindOther},
		{"varchar", KindOther},
		{"geometry", KindGeometry},
		{"geography", KindOther},
		{"tsvector", KindTSVector},
	}
	for _, tt := range tests {
		t.Run(tt.udt, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.udt))
		})
	}
}

func TestTableViews(t *testing.T) {
	table := &Table{
		Database: "gis",
		Name:     "parcels",
		Columns: []Column{
			{Name: "id", UDTName: "int4"},
			{Name: "the_geom", UDTName: "geometry"},
			{Name: "name", UDTName: "varchar"},
			{Name: "name_tsv", UDTName: "tsvector"},
			{Name: "centroid", UDTName: "geometry"},
			{Name: "owner_tsv", UDTName: "tsvector"},
			{Name: "area", UDTName: "numeric"},
		},
	}

	t.Run("first geometry column", func(t *testing.T) {
		geom, ok := table.GeometryColumn()
		require.True(t, ok)
		assert.Equal(t, "the_geom", geom)
	})

	t.Run("tsvector columns", func(t *testing.T) {
		assert.Equal(t, []string{"name_tsv", "owner_tsv"}, table.TSVectorColumns())
	})

	t.Run("normal columns", func(t *testing.T) {
		// only the first geometry column is removed
		assert.Equal(t, []string{"id", "name", "centroid", "area"}, table.NormalColumns())
	})

	t.Run("column lookup", func(t *testing.T) {
		col, ok := table.Column("id")
		require.True(t, ok)
		assert.Equal(t, KindInteger, col.Kind())

		_, ok = table.Column("ID")
		assert.False(t, ok, "lookup is case sensitive")
	})

	t.Run("no geometry", func(t *testing.T) {
		plain := &Table{Columns: []Column{{Name: "id", UDTName: "int4"}, {Name: "name", UDTName: "text"}}}
		_, ok := plain.GeometryColumn()
		assert.False(t, ok)
		assert.Empty(t, plain.TSVectorColumns())
		assert.Equal(t, []string{"id", "name"}, plain.NormalColumns())
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("reads columns in order", func(t *testing.T) {
		conn := pgfake.NewConn(catalog(
			[2]string{"id", "integer"},
			[2]string{"name", "varchar"},
			[2]string{"the_geom", "geometry"},
		))

		table, err := Load(ctx, conn, "gis", "parcels")
		require.NoError(t, err)
		assert.Equal(t, "gis", table.Database)
		assert.Equal(t, "parcels", table.Name)
		assert.Equal(t, []Column{
			{Name: "id", UDTName: "integer"},
			{Name: "name", UDTName: "varchar"},
			{Name: "the_geom", UDTName: "geometry"},
		}, table.Columns)

		queries := conn.Queries()
		require.Len(t, queries, 1)
		assert.Equal(t, []any{"gis", "parcels"}, queries[0].Args, "names travel as parameters")
		assert.Contains(t, queries[0].SQL, "information_schema.columns")
	})

	t.Run("unknown table", func(t *testing.T) {
		conn := pgfake.NewConn(catalog())
		_, err := Load(ctx, conn, "gis", "nope")
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		conn := pgfake.NewConn(pgfake.Result{Err: assert.AnError})
		_, err := Load(ctx, conn, "gis", "parcels")
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("memoizes per table", func(t *testing.T) {
		cache, err := NewCache(0)
		require.NoError(t, err)

		conn := pgfake.NewConn(
			catalog([2]string{"id", "integer"}),
			catalog([2]string{"code", "varchar"}),
		)

		first, err := cache.Get(ctx, conn, "gis", "parcels")
		require.NoError(t, err)
		second, err := cache.Get(ctx, conn, "gis", "parcels")
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Len(t, conn.Queries(), 1, "second Get must not query the catalog")

		other, err := cache.Get(ctx, conn, "gis", "zones")
		require.NoError(t, err)
		assert.Equal(t, "code", other.Columns[0].Name)
		assert.Len(t, conn.Queries(), 2)
		assert.Equal(t, 2, cache.Len())
	})

	t.Run("MustNewCache", func(t *testing.T) {
		for _, size := range []int{-1, 0, 1} {
			assert.NotPanics(t, func() {
				cache := MustNewCache(size)
				assert.Zero(t, cache.Len())
			})
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		cache, err := NewCache(4)
		require.NoError(t, err)

		conn := pgfake.NewConn(catalog(), catalog([2]string{"id", "integer"}))
		_, err = cache.Get(ctx, conn, "gis", "late")
		require.ErrorIs(t, err, ErrTableNotFound)

		table, err := cache.Get(ctx, conn, "gis", "late")
		require.NoError(t, err)
		assert.Len(t, table.Columns, 1)
	})

	t.Run("invalidate", func(t *testing.T) {
		cache, err := NewCache(4)
		require.NoError(t, err)

		conn := pgfake.NewConn(
			catalog([2]string{"id", "integer"}),
			catalog([2]string{"id", "integer"}),
			catalog([2]string{"id", "bigint"}),
		)
		_, err = cache.Get(ctx, conn, "gis", "a")
		require.NoError(t, err)
		_, err = cache.Get(ctx, conn, "other", "a")
		require.NoError(t, err)

		cache.InvalidateDatabase("gis")
		assert.Equal(t, 1, cache.Len())

		reloaded, err := cache.Get(ctx, conn, "gis", "a")
		require.NoError(t, err)
		assert.Equal(t, "bigint", reloaded.Columns[0].UDTName)

		cache.Invalidate("other", "a")
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("bounded", func(t *testing.T) {
		cache, err := NewCache(1)
		require.NoError(t, err)

		conn := pgfake.NewConn(
			catalog([2]string{"id", "integer"}),
			catalog([2]string{"id", "integer"}),
		)
		_, err = cache.Get(ctx, conn, "gis", "a")
		require.NoError(t, err)
		_, err = cache.Get(ctx, conn, "gis", "b")
		require.NoError(t, err)
		assert.Equal(t, 1, cache.Len())
	})
}
