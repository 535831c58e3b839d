package pgx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chrisberkhout/restful-geof/internal/testutil/pgtest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolManagerOffline(t *testing.T) {
	ctx := context.Background()

	t.Run("NewPoolManager", func(t *testing.T) {
		pm := NewPoolManager(nil)
		require.NotNil(t, pm)
		assert.Empty(t, pm.List())
	})

	t.Run("nil base config", func(t *testing.T) {
		pm := NewPoolManager(nil)
		_, err := pm.Get(ctx, "gis")
		require.Error(t, err)
		assert.Empty(t, pm.List(), "failed pools are not cached")
	})

	t.Run("Remove unknown", func(t *testing.T) {
		pm := NewPoolManager(nil)
		assert.ErrorIs(t, pm.Remove("nonexistent"), ErrPoolNotFound)
	})

	t.Run("Get after Close", func(t *testing.T) {
		pm := NewPoolManager(nil)
		pm.Close()
		_, err := pm.Get(ctx, "gis")
		assert.ErrorIs(t, err, ErrPoolsClosed)
		_, err = pm.Acquire(ctx, "gis")
		assert.ErrorIs(t, err, ErrPoolsClosed)
	})

	t.Run("unreachable server", func(t *testing.T) {
		cfg, err := pgxpool.ParseConfig("postgres://nobody@127.0.0.1:1/none?connect_timeout=1")
		require.NoError(t, err)
		pm := NewPoolManager(cfg)
		_, err = pm.Get(ctx, "gis")
		require.Error(t, err)
		assert.Empty(t, pm.List())
	})
}

func TestPoolManager(t *testing.T) {
	ctx := context.Background()
	base := pgtest.ParsePoolConfig(t)
	database := base.ConnConfig.Database

	t.Run("Get creates once", func(t *testing.T) {
		pm := NewPoolManager(base)
		t.Cleanup(pm.Close)

		first, err := pm.Get(ctx, database)
		require.NoError(t, err)
		second, err := pm.Get(ctx, database)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, []string{database}, pm.List())
	})

	t.Run("Acquire", func(t *testing.T) {
		pm := NewPoolManager(base)
		t.Cleanup(pm.Close)

		conn, err := pm.Acquire(ctx, database)
		require.NoError(t, err)
		defer conn.Release()

		var current string
		require.NoError(t, conn.QueryRow(ctx, "SELECT current_database()").Scan(&current))
		assert.Equal(t, database, current)
	})

	t.Run("Remove", func(t *testing.T) {
		pm := NewPoolManager(base)
		t.Cleanup(pm.Close)

		_, err := pm.Get(ctx, database)
		require.NoError(t, err)
		require.NoError(t, pm.Remove(database))
		assert.NotContains(t, pm.List(), database)
	})

	t.Run("failing pool is removed", func(t *testing.T) {
		pm := NewPoolManager(base)
		t.Cleanup(pm.Close)

		pool, err := pm.Get(ctx, database)
		require.NoError(t, err)
		pool.Close()

		_, err = pm.Acquire(ctx, database)
		require.Error(t, err)
		assert.Eventually(t, func() bool { return len(pm.List()) == 0 }, time.Second, 10*time.Millisecond)

		conn, err := pm.Acquire(ctx, database)
		require.NoError(t, err)
		conn.Release()
		assert.Equal(t, []string{database}, pm.List())
	})

	t.Run("canceled acquire keeps pool", func(t *testing.T) {
		pm := NewPoolManager(base)
		t.Cleanup(pm.Close)

		_, err := pm.Get(ctx, database)
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = pm.Acquire(canceled, database)
		require.Error(t, err)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, []string{database}, pm.List())
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		pm := NewPoolManager(base)
		t.Cleanup(pm.Close)

		var wg sync.WaitGroup
		pools := make([]*pgxpool.Pool, 8)
		for i := range pools {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pool, err := pm.Get(ctx, database)
				if err == nil {
					pools[i] = pool
				}
			}(i)
		}
		wg.Wait()

		for _, p := range pools {
			assert.Same(t, pools[0], p)
		}
	})
}
