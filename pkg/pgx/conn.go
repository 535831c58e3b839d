package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn defines a common interface for interacting with PostgreSQL connections.
// It is satisfied by *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool, so the lookup
// path can run on a dedicated connection in production and on a fake in tests.
type Conn interface {
	// Exec executes a SQL statement in the context of the given context 'ctx'.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SQL query and returns the rows. Arguments are sent as
	// bound parameters; callers never interpolate values into sql.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Quote returns name quoted as a single SQL identifier.
func Quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
