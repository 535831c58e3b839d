package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chrisberkhout/restful-geof/pkg/metrics"
	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// Following PostgREST's notification convention
	// https://docs.postgrest.org/en/stable/references/schema_cache.html
	ReloadChannel = "geof"
	ReloadPayload = "reload schema"

	DefaultCacheSize = 256
)

// Key identifies a cached table.
type Key struct {
	Database string
	Table    string
}

func (k Key) String() string {
	return k.Database + "." + k.Table
}

// Cache memoizes Table metadata per (database, table). It is safe for
// concurrent use; concurrent misses for the same key share one catalog query.
type Cache struct {
	tables *lru.Cache[Key, *Table]
	group  singleflight.Group
}

// NewCache returns a cache holding at most size tables (DefaultCacheSize if
// size <= 0).
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	tables, err := lru.New[Key, *Table](size)
	if err != nil {
		return nil, fmt.Errorf("schema cache: %w", err)
	}
	return &Cache{tables: tables}, nil
}

// MustNewCache is like NewCache but panics on error.
func MustNewCache(size int) *Cache {
	c, err := NewCache(size)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the columns of database.table, loading them through conn on
// the first access only.
func (c *Cache) Get(ctx context.Context, conn pg.Conn, database, table string) (*Table, error) {
	key := Key{Database: database, Table: table}
	if t, ok := c.tables.Get(key); ok {
		return t, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if t, ok := c.tables.Get(key); ok {
			return t, nil
		}
		t, err := Load(ctx, conn, database, table)
		if err != nil {
			return nil, err
		}
		metrics.SchemaLoads.WithLabelValues(database).Inc()
		c.tables.Add(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Invalidate drops one table; the next Get reloads it.
func (c *Cache) Invalidate(database, table string) {
	c.tables.Remove(Key{Database: database, Table: table})
}

// InvalidateDatabase drops every table of database.
func (c *Cache) InvalidateDatabase(database string) {
	for _, key := range c.tables.Keys() {
		if key.Database == database {
			c.tables.Remove(key)
		}
	}
}

// Len reports the number of cached tables.
func (c *Cache) Len() int {
	return c.tables.Len()
}

// Notification handles one LISTEN notification, dropping the cached tables
// of database when it carries ReloadPayload.
func (c *Cache) Notification(database string, n *pgconn.Notification) bool {
	if n == nil || n.Payload != ReloadPayload {
		return false
	}
	c.InvalidateDatabase(database)
	return true
}

// Watch listens on ReloadChannel in database and drops that database's
// cached tables on every `NOTIFY geof, 'reload schema'`. The listening
// connection is re-established with exponential backoff; cached tables are
// dropped on each (re)connect since notifications may have been missed.
// Watch blocks until ctx is done.
func (c *Cache) Watch(ctx context.Context, pools *pg.PoolManager, database string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("database", database), zap.String("channel", ReloadChannel))

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // keep trying until ctx is done

	operation := func() error {
		poolConn, err := pools.Acquire(ctx, database)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, pg.ErrPoolsClosed) {
				return backoff.Permanent(err)
			}
			logger.Warn("schema listener connect failed", zap.Error(err))
			return err
		}
		conn := poolConn.Hijack()
		defer conn.Close(context.Background())

		c.InvalidateDatabase(database)
		b.Reset()
		logger.Info("schema listener started")

		err = pg.Listen(ctx, conn, ReloadChannel, func(n *pgconn.Notification) {
			if c.Notification(database, n) {
				logger.Info("schema cache reloaded")
			}
		})
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		logger.Warn("schema listener stopped", zap.Error(err))
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
