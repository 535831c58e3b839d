package rest

import (
	"fmt"
	"strings"

	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
)

// GeometryColumn is the alias under which the GeoJSON rendering of a
// table's geometry is selected.
const GeometryColumn = "geometry_geojson"

// Geometry is reprojected to WGS 84 and rendered with at most 15 decimal
// digits; option 2 adds the short-form CRS member.
const (
	geometrySRID       = 4326
	geometryMaxDigits  = 15
	geometryJSONOption = 2
)

// buildSelectQuery builds the lookup statement for table and its bound
// arguments:
//
//	SELECT <normal columns>[, <geometry as GeoJSON>] FROM <table>
//	[WHERE <conditions>] [ORDER BY <contains relevance>] [LIMIT n]
func buildSelectQuery(table *schema.Table, opts QueryOptions) (string, []any, error) {
	c := newCompiler(table)

	where, err := c.where(opts.Conditions())
	if err != nil {
		return "", nil, err
	}

	var query strings.Builder

	columns := make([]string, 0, len(table.Columns))
	for _, name := range table.NormalColumns() {
		columns = append(columns, pg.Quote(name))
	}
	if geom, ok := table.GeometryColumn(); ok {
		columns = append(columns, fmt.Sprintf("ST_AsGeoJSON(ST_Transform(%s, %d), %d, %d) AS %s",
			pg.Quote(geom), geometrySRID, geometryMaxDigits, geometryJSONOption, GeometryColumn))
	}

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(columns, ", "))
	query.WriteString(" FROM ")
	query.WriteString(pg.Quote(table.Name))

	if where != "" {
		query.WriteString(" WHERE ")
		query.WriteString(where)
	}

	if len(opts.Contains) > 0 {
		ranks := make([]string, 0, len(opts.Contains))
		for _, fv := range opts.Contains {
			rank, err := c.relevance(fv)
			if err != nil {
				return "", nil, err
			}
			ranks = append(ranks, rank)
		}
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(ranks, ", "))
	}

	if opts.Limit != nil {
		if *opts.Limit < 0 {
			return "", nil, fmt.Errorf("%w: negative limit %d", ErrInvalidValue, *opts.Limit)
		}
		query.WriteString(" LIMIT ")
		query.WriteString(c.placeholder(*opts.Limit))
	}

	return query.String(), c.args, nil
}
