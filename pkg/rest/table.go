package rest

import (
	"context"
	"encoding/json"
	"fmt"

	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
)

// Table is a handle on one table of one database, bound to an open
// connection. Column metadata is read once through the schema cache and
// reused by every Find on the same cache.
type Table struct {
	Database string
	Name     string

	conn    pg.Conn
	schemas *schema.Cache
}

// NewTable returns a handle on database.name that queries through conn. If
// schemas is nil the handle keeps its own single-entry cache.
func NewTable(conn pg.Conn, schemas *schema.Cache, database, name string) *Table {
	if schemas == nil {
		schemas = schema.MustNewCache(1)
	}
	return &Table{Database: database, Name: name, conn: conn, schemas: schemas}
}

// Schema returns the table's columns.
func (t *Table) Schema(ctx context.Context) (*schema.Table, error) {
	return t.schemas.Get(ctx, t.conn, t.Database, t.Name)
}

// Query returns the statement and arguments Find would execute for opts.
func (t *Table) Query(ctx context.Context, opts QueryOptions) (string, []any, error) {
	table, err := t.Schema(ctx)
	if err != nil {
		return "", nil, err
	}
	return buildSelectQuery(table, opts)
}

// FindFeatures runs the lookup described by opts. Invalid values are
// rejected before any data query is issued.
func (t *Table) FindFeatures(ctx context.Context, opts QueryOptions) (*FeatureCollection, error) {
	sql, args, err := t.Query(ctx, opts)
	if err != nil {
		return nil, err
	}

	rows, err := t.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", t.Database, t.Name, err)
	}
	fc, err := CollectFeatures(rows)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", t.Database, t.Name, err)
	}
	return fc, nil
}

// Find runs the lookup described by opts and returns the GeoJSON
// FeatureCollection document.
func (t *Table) Find(ctx context.Context, opts QueryOptions) ([]byte, error) {
	fc, err := t.FindFeatures(ctx, opts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fc)
}
