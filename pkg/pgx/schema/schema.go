// Package schema reads and caches PostgreSQL column metadata for the tables
// served over the REST interface. Columns are classified into geometry,
// full-text search vectors and ordinary columns, which decides how a table is
// projected and how filter values are encoded.
package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"

	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
)

// ErrTableNotFound is returned when the catalog has no columns for a table.
var ErrTableNotFound = errors.New("table not found")

// Kind classifies a column by its underlying (udt) type.
type Kind int

const (
	KindOther Kind = iota
	KindInteger
	KindGeometry
	KindTSVector
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindGeometry:
		return "geometry"
	case KindTSVector:
		return "tsvector"
	default:
		return "other"
	}
}

// KindOf classifies a udt name as reported by information_schema.columns.
func KindOf(udtName string) Kind {
	switch udtName {
	case "integer", "int", "smallint", "bigint", "int2", "int4", "int8":
		return KindInteger
	case "geometry":
		return KindGeometry
	case "tsvector":
		return KindTSVector
	default:
		return KindOther
	}
}

type Column struct {
	Name    string `json:"name"`
	UDTName string `json:"udt_name"`
}

// Kind returns the column's classification.
func (c Column) Kind() Kind {
	return KindOf(c.UDTName)
}

// Table holds the columns of one table in catalog order.
type Table struct {
	Database string   `json:"database"`
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (Column, bool) {
	i := slices.IndexFunc(t.Columns, func(c Column) bool { return c.Name == name })
	if i < 0 {
		return Column{}, false
	}
	return t.Columns[i], true
}

// GeometryColumn returns the first geometry column. Any further geometry
// columns are ordinary columns and appear in NormalColumns.
func (t *Table) GeometryColumn() (string, bool) {
	for _, c := range t.Columns {
		if c.Kind() == KindGeometry {
			return c.Name, true
		}
	}
	return "", false
}

// TSVectorColumns returns every full-text search vector column.
func (t *Table) TSVectorColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.Kind() == KindTSVector {
			names = append(names, c.Name)
		}
	}
	return names
}

// NormalColumns returns all columns except the geometry column and the
// tsvector columns, in catalog order.
func (t *Table) NormalColumns() []string {
	geom, _ := t.GeometryColumn()
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == geom || c.Kind() == KindTSVector {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

const columnsQuery = `
	SELECT column_name, udt_name
	FROM information_schema.columns
	WHERE table_catalog = $1 AND table_name = $2
	ORDER BY table_schema, ordinal_position`

// Load reads the columns of database.table with a single catalog query.
func Load(ctx context.Context, conn pg.Conn, database, table string) (*Table, error) {
	rows, err := conn.Query(ctx, columnsQuery, database, table)
	if err != nil {
		return nil, fmt.Errorf("query columns %s.%s: %w", database, table, err)
	}
	defer rows.Close()

	t := &Table{Database: database, Name: table}
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.UDTName); err != nil {
			return nil, fmt.Errorf("scan columns %s.%s: %w", database, table, err)
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns %s.%s: %w", database, table, err)
	}

	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", database, table, ErrTableNotFound)
	}
	return t, nil
}
