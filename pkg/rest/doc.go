// Package rest serves PostGIS tables as read-only GeoJSON over HTTP.
//
// Every table of every database reachable with the configured credentials is
// exposed at <prefix>/<database>/<table> (prefix defaults to /api). Filters
// and a limit are appended as path segments:
//
//	Segment                | Description
//	-----------------------|------------------------------------------------
//	/<field>/is/<value>    | Equality. Integer columns compare as integers
//	/<field>/matches/<q>   | Full-text match on a tsvector column; the last word is a prefix
//	/limit/<n>             | Return at most n features
//
// Segments are percent-decoded individually, so a value may contain an
// encoded slash. Conditions are combined with AND. Any other path or method
// is answered with 400 and an empty body.
//
// The response is a GeoJSON FeatureCollection. The first geometry column is
// reprojected to EPSG:4326 and becomes each feature's geometry; tsvector
// columns are omitted and all other columns become properties in table order.
//
//	GET /api/vicmap/localities/name/matches/clif%20sp/limit/5
//
// Example usage:
//
//	pools := pgx.NewPoolManager(poolConfig)
//	defer pools.Close()
//	schemas, _ := schema.NewCache(schema.DefaultCacheSize)
//
//	server := rest.NewServer(rest.NewStore(pools, schemas), rest.WithLogger(logger))
//	log.Fatal(server.Start(":8080"))
package rest
