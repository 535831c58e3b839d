package rest

import (
	"fmt"
	"strconv"
	"strings"

	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
)

// compiler turns conditions into SQL predicates. Field names are resolved
// against the table's columns and quoted as identifiers; values are only
// ever referenced through positional parameters collected in args.
type compiler struct {
	table *schema.Table
	args  []any
}

func newCompiler(table *schema.Table) *compiler {
	return &compiler{table: table}
}

// placeholder binds v and returns its parameter reference.
func (c *compiler) placeholder(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

// column resolves field to a quoted identifier of a known column.
func (c *compiler) column(field string) (string, schema.Column, error) {
	col, ok := c.table.Column(field)
	if !ok {
		return "", schema.Column{}, fmt.Errorf("%w: %q in %s", ErrUnknownColumn, field, c.table.Name)
	}
	return pg.Quote(col.Name), col, nil
}

// where compiles conds into a single predicate joined with AND. It returns
// an empty string when there are no conditions.
func (c *compiler) where(conds []Condition) (string, error) {
	predicates := make([]string, 0, len(conds))
	for _, cond := range conds {
		p, err := c.condition(cond)
		if err != nil {
			return "", err
		}
		predicates = append(predicates, p)
	}
	return strings.Join(predicates, " AND "), nil
}

func (c *compiler) condition(cond Condition) (string, error) {
	switch cond.Operator {
	case OpEquals:
		return c.equals(cond.Field, cond.Value)
	case OpContains:
		return c.contains(cond.Field, cond.Value)
	case OpMatches:
		return c.matches(cond.Field, cond.Value)
	default:
		return "", fmt.Errorf("unsupported operator %s", cond.Operator)
	}
}

// equals compares against an integer for integer-family columns and against
// text otherwise. Integers are compared as int8 so that a value outside the
// column's own range is sent and simply matches nothing.
func (c *compiler) equals(field, value string) (string, error) {
	ident, col, err := c.column(field)
	if err != nil {
		return "", err
	}

	if col.Kind() == schema.KindInteger {
		n, err := parseInteger(value)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not an integer (column %q)", ErrInvalidValue, value, field)
		}
		return fmt.Sprintf("%s = %s::int8", ident, c.placeholder(n)), nil
	}

	return fmt.Sprintf("%s = %s", ident, c.placeholder(value)), nil
}

// contains is a case-insensitive substring match. LIKE wildcards in value
// match literally.
func (c *compiler) contains(field, value string) (string, error) {
	ident, _, err := c.column(field)
	if err != nil {
		return "", err
	}
	pattern := "%" + escapeLike(value) + "%"
	return fmt.Sprintf("%s::varchar ILIKE %s", ident, c.placeholder(pattern)), nil
}

// matches is a full-text match that treats the last word as a prefix. When
// the plain query is empty (only stop words), it falls back to the empty
// query, which matches nothing.
func (c *compiler) matches(field, value string) (string, error) {
	ident, _, err := c.column(field)
	if err != nil {
		return "", err
	}
	p := c.placeholder(value)
	return fmt.Sprintf(
		"%[1]s @@ CASE"+
			" WHEN char_length(plainto_tsquery(%[2]s)::varchar) > 0"+
			" THEN to_tsquery(plainto_tsquery(%[2]s)::varchar || ':*')"+
			" ELSE plainto_tsquery(%[2]s) END",
		ident, p), nil
}

// relevance ranks rows by where value first occurs in field, ignoring case.
func (c *compiler) relevance(fv FieldValue) (string, error) {
	ident, _, err := c.column(fv.Field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("position(upper(%s) in upper(%s::varchar))", c.placeholder(fv.Value), ident), nil
}

// parseInteger accepts Go integer literals (an optional sign, base prefixes
// and digit separators) surrounded by optional whitespace.
func parseInteger(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 0, 64)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes the LIKE metacharacters of s for the default escape
// character (backslash).
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
