// Package pgfake provides in-memory stand-ins for pgx connections and rows so
// that query building and row mapping can be tested without a database.
package pgfake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Query is one recorded call to Conn.Query.
type Query struct {
	SQL  string
	Args []any
}

// Result is the canned answer to one query.
type Result struct {
	Columns []string
	Rows    [][]any
	Err     error
}

// Conn answers queries from Results in order and records every query it sees.
type Conn struct {
	Results []Result

	mu      sync.Mutex
	queries []Query
}

// NewConn returns a Conn that answers with results in order.
func NewConn(results ...Result) *Conn {
	return &Conn{Results: results}
}

func (c *Conn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, Query{SQL: sql, Args: args})
	if len(c.Results) == 0 {
		return nil, fmt.Errorf("pgfake: unexpected query %q", sql)
	}
	r := c.Results[0]
	c.Results = c.Results[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return NewRows(r.Columns, r.Rows), nil
}

func (c *Conn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, fmt.Errorf("pgfake: Exec not supported: %q", sql)
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := c.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

// Queries returns the queries seen so far.
func (c *Conn) Queries() []Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Query(nil), c.queries...)
}

type row struct {
	rows pgx.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// Rows iterates over fixed values. Scan assigns by reflection, so dest
// pointers must match the stored value types.
type Rows struct {
	fields []pgconn.FieldDescription
	rows   [][]any
	pos    int
	closed bool
	err    error
}

var _ pgx.Rows = (*Rows)(nil)

// NewRows returns rows with the given column names.
func NewRows(columns []string, rows [][]any) *Rows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, name := range columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return &Rows{fields: fields, rows: rows}
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

// Closed reports whether Close was called.
func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.rows) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *Rows) current() ([]any, error) {
	if r.pos == 0 || r.pos > len(r.rows) {
		return nil, errors.New("pgfake: no current row")
	}
	return r.rows[r.pos-1], nil
}

func (r *Rows) Values() ([]any, error) {
	values, err := r.current()
	if err != nil {
		return nil, err
	}
	return append([]any(nil), values...), nil
}

func (r *Rows) Scan(dest ...any) error {
	values, err := r.current()
	if err != nil {
		return err
	}
	if len(dest) != len(values) {
		return fmt.Errorf("pgfake: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("pgfake: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(elem.Type()) {
			return fmt.Errorf("pgfake: cannot scan %T into %s", values[i], elem.Type())
		}
		elem.Set(v)
	}
	return nil
}
