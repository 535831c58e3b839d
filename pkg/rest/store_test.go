package rest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chrisberkhout/restful-geof/internal/testutil/pgtest"
	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFind(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	base := pgtest.ParsePoolConfig(t)
	database := base.ConnConfig.Database

	conn := pgtest.Connect(ctx, t)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		t.Skipf("postgis not available: %v", err)
	}
	pgtest.Exec(ctx, t, conn,
		`DROP TABLE IF EXISTS geof_test_places`,
		`CREATE TABLE geof_test_places (
			id integer PRIMARY KEY,
			name text,
			geom geometry(Point, 4326),
			name_tsv tsvector
		)`,
		`INSERT INTO geof_test_places VALUES
			(1, 'Clifton Springs', ST_SetSRID(ST_MakePoint(144.5646, -38.1568), 4326), to_tsvector('Clifton Springs')),
			(2, 'Cliff Hill', ST_SetSRID(ST_MakePoint(145.1, -37.9), 4326), to_tsvector('Cliff Hill')),
			(3, '100% Pure', NULL, to_tsvector('100% Pure'))`,
	)
	t.Cleanup(func() { _, _ = conn.Exec(context.Background(), "DROP TABLE IF EXISTS geof_test_places") })

	pools := pg.NewPoolManager(base)
	defer pools.Close()
	schemas, err := schema.NewCache(8)
	require.NoError(t, err)
	store := NewStore(pools, schemas)

	find := func(t *testing.T, path string) FeatureCollection {
		t.Helper()
		lookup, err := ParsePath(DefaultPrefix, "/api/"+database+"/geof_test_places"+path)
		require.NoError(t, err)
		body, err := store.Find(ctx, lookup.Database, lookup.Table, lookup.Options)
		require.NoError(t, err)

		var fc FeatureCollection
		require.NoError(t, json.Unmarshal(body, &fc))
		return fc
	}

	ids := func(fc FeatureCollection) []float64 {
		var out []float64
		for _, f := range fc.Features {
			out = append(out, f.Properties[0].Value.(float64))
		}
		return out
	}

	t.Run("all", func(t *testing.T) {
		fc := find(t, "")
		assert.Len(t, fc.Features, 3)
	})

	t.Run("integer equals", func(t *testing.T) {
		fc := find(t, "/id/is/%32")
		assert.Equal(t, []float64{2}, ids(fc))
		assert.NotNil(t, fc.Features[0].Geometry)
	})

	t.Run("integer beyond column range", func(t *testing.T) {
		fc := find(t, "/id/is/99999999999")
		assert.Equal(t, TypeFeatureCollection, fc.Type)
		assert.NotNil(t, fc.Features)
		assert.Empty(t, fc.Features)
	})

	t.Run("prefix match", func(t *testing.T) {
		fc := find(t, "/name_tsv/matches/clifton%20sp")
		assert.Equal(t, []float64{1}, ids(fc))
	})

	t.Run("stop words match nothing", func(t *testing.T) {
		fc := find(t, "/name_tsv/matches/the")
		assert.Empty(t, fc.Features)
	})

	t.Run("limit", func(t *testing.T) {
		fc := find(t, "/limit/1")
		assert.Len(t, fc.Features, 1)
	})

	t.Run("contains escapes wildcards", func(t *testing.T) {
		table, release, err := store.Table(ctx, database, "geof_test_places")
		require.NoError(t, err)
		defer release()

		opts := NewQueryOptions()
		opts.Add(Condition{Field: "name", Operator: OpContains, Value: "0%"})
		fc, err := table.FindFeatures(ctx, opts)
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)
		assert.Nil(t, fc.Features[0].Geometry)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := store.Find(ctx, database, "geof_no_such_table", NewQueryOptions())
		assert.ErrorIs(t, err, schema.ErrTableNotFound)
	})
}
