package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRouteMismatch reports a request whose method or path is outside the
	// lookup grammar. No query is attempted.
	ErrRouteMismatch = errors.New("route mismatch")
	// ErrInvalidValue reports a filter value that cannot be coerced to the
	// type of its column.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnknownColumn reports a filter on a column the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

// Operator is the comparison applied by a Condition.
type Operator int

const (
	OpEquals Operator = iota
	OpContains
	OpMatches
)

func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "is"
	case OpContains:
		return "contains"
	case OpMatches:
		return "matches"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// Condition is a single field filter. Field and Value are percent-decoded
// path segments.
type Condition struct {
	Field    string
	Operator Operator
	Value    string
}

// FieldValue pairs a field name with the value it is compared to. It
// marshals as a single-member object, {"field":"value"}.
type FieldValue struct {
	Field string
	Value string
}

func (fv FieldValue) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(fv.Field)
	if err != nil {
		return nil, err
	}
	val, err := json.Marshal(fv.Value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(val)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fv *FieldValue) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("field value must have exactly one member, got %d", len(m))
	}
	for k, v := range m {
		fv.Field, fv.Value = k, v
	}
	return nil
}

// QueryOptions collects the filters of one lookup. Each collection keeps
// path order. Limit is nil when the request did not ask for one.
type QueryOptions struct {
	Equals        []FieldValue `json:"equals"`
	Contains      []FieldValue `json:"contains"`
	FullTextMatch []FieldValue `json:"full_text_match"`
	Limit         *int         `json:"limit,omitempty"`
}

// NewQueryOptions returns options with empty, non-nil collections.
func NewQueryOptions() QueryOptions {
	return QueryOptions{
		Equals:        []FieldValue{},
		Contains:      []FieldValue{},
		FullTextMatch: []FieldValue{},
	}
}

// Add appends a condition to the collection of its operator.
func (o *QueryOptions) Add(c Condition) {
	fv := FieldValue{Field: c.Field, Value: c.Value}
	switch c.Operator {
	case OpEquals:
		o.Equals = append(o.Equals, fv)
	case OpContains:
		o.Contains = append(o.Contains, fv)
	case OpMatches:
		o.FullTextMatch = append(o.FullTextMatch, fv)
	}
}

// SetLimit records a row limit.
func (o *QueryOptions) SetLimit(n int) {
	o.Limit = &n
}

// Conditions flattens the options into compilation order: all equals, then
// all contains, then all matches, each in path order.
func (o QueryOptions) Conditions() []Condition {
	conds := make([]Condition, 0, len(o.Equals)+len(o.Contains)+len(o.FullTextMatch))
	for _, fv := range o.Equals {
		conds = append(conds, Condition{Field: fv.Field, Operator: OpEquals, Value: fv.Value})
	}
	for _, fv := range o.Contains {
		conds = append(conds, Condition{Field: fv.Field, Operator: OpContains, Value: fv.Value})
	}
	for _, fv := range o.FullTextMatch {
		conds = append(conds, Condition{Field: fv.Field, Operator: OpMatches, Value: fv.Value})
	}
	return conds
}
