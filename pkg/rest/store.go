package rest

import (
	"context"
	"encoding/json"

	"github.com/chrisberkhout/restful-geof/pkg/metrics"
	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
)

// Finder performs one lookup and returns the GeoJSON document.
type Finder interface {
	Find(ctx context.Context, database, table string, opts QueryOptions) ([]byte, error)
}

// Store finds features in any database reachable through a PoolManager.
// Each lookup holds one pooled connection for its duration.
type Store struct {
	pools   *pg.PoolManager
	schemas *schema.Cache
}

var _ Finder = (*Store)(nil)

func NewStore(pools *pg.PoolManager, schemas *schema.Cache) *Store {
	return &Store{pools: pools, schemas: schemas}
}

// Table opens a handle on database.table. The returned release func must be
// called once the handle is no longer used.
func (s *Store) Table(ctx context.Context, database, table string) (*Table, func(), error) {
	conn, err := s.pools.Acquire(ctx, database)
	if err != nil {
		return nil, nil, err
	}
	return NewTable(conn, s.schemas, database, table), conn.Release, nil
}

func (s *Store) Find(ctx context.Context, database, table string, opts QueryOptions) ([]byte, error) {
	t, release, err := s.Table(ctx, database, table)
	if err != nil {
		return nil, err
	}
	defer release()

	fc, err := t.FindFeatures(ctx, opts)
	if err != nil {
		return nil, err
	}
	metrics.FeaturesReturned.WithLabelValues(database, table).Observe(float64(len(fc.Features)))
	return json.Marshal(fc)
}
