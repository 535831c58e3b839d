package pgx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolManager manages one *pgxpool.Pool per database. Every pool is derived
// from the same base config; only the database name differs. Pools are
// created the first time a database is asked for.
type PoolManager struct {
	base  *pgxpool.Config
	pools map[string]*pgxpool.Pool
	mu    sync.RWMutex
}

var (
	ErrPoolNotFound = errors.New("connection pool not found")
	ErrPoolsClosed  = errors.New("pool manager is closed")
)

// NewPoolManager returns a manager that derives per-database pools from base.
func NewPoolManager(base *pgxpool.Config) *PoolManager {
	return &PoolManager{
		base:  base,
		pools: make(map[string]*pgxpool.Pool),
	}
}

// Get returns the pool for database, connecting it if needed. A failed
// connect or ping is returned as is and nothing is cached.
func (m *PoolManager) Get(ctx context.Context, database string) (*pgxpool.Pool, error) {
	m.mu.RLock()
	pool, ok := m.pools[database]
	closed := m.pools == nil
	m.mu.RUnlock()

	if closed {
		return nil, ErrPoolsClosed
	}
	if ok {
		return pool, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pools == nil {
		return nil, ErrPoolsClosed
	}
	if pool, ok := m.pools[database]; ok {
		return pool, nil
	}

	pool, err := m.createPool(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}
	m.pools[database] = pool
	return pool, nil
}

// Acquire returns a dedicated connection to database. The caller must
// Release it. A pool that fails to hand out a connection for any reason
// other than ctx is removed, so the next Acquire connects afresh (or reports
// that the database is gone).
func (m *PoolManager) Acquire(ctx context.Context, database string) (*pgxpool.Conn, error) {
	pool, err := m.Get(ctx, database)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			// Close waits for acquired connections to be released.
			go func() { _ = m.Remove(database) }()
		}
		return nil, fmt.Errorf("pgx: acquire %q: %w", database, err)
	}
	return conn, nil
}

// Remove removes the pool of database and closes it once its connections
// have been released.
func (m *PoolManager) Remove(database string) error {
	m.mu.Lock()
	pool, ok := m.pools[database]
	if ok {
		delete(m.pools, database)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("pgx: %q: %w", database, ErrPoolNotFound)
	}
	pool.Close()
	return nil
}

// Close closes all connection pools. Subsequent calls to Get fail.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pools {
		p.Close()
	}
	m.pools = nil
}

// List returns the names of the databases with an open pool, sorted.
func (m *PoolManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *PoolManager) createPool(ctx context.Context, database string) (*pgxpool.Pool, error) {
	if m.base == nil {
		return nil, errors.New("no base pool config")
	}

	cfg := m.base.Copy()
	cfg.ConnConfig.Database = database

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}

	return pool, nil
}
