package pgx

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

// Compile-time interface compliance checks
var (
	_ Conn = (*pgx.Conn)(nil)
	_ Conn = (*pgxpool.Conn)(nil)
	_ Conn = (*pgxpool.Pool)(nil)
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "parcels", `"parcels"`},
		{"mixed case", "LandUse", `"LandUse"`},
		{"embedded quote", `bad"name`, `"bad""name"`},
		{"injection attempt", `x"; DROP TABLE t; --`, `"x""; DROP TABLE t; --"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Quote(tt.in))
		})
	}
}
