package rest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	TypeFeature           = "Feature"
	TypeFeatureCollection = "FeatureCollection"
)

// Property is one named value of a feature.
type Property struct {
	Key   string
	Value any
}

// Properties encode as a JSON object with members in column order.
type Properties []Property

func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(prop.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(prop.Value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", prop.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping member order.
func (p *Properties) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	props := Properties{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties: expected key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		props = append(props, Property{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = props
	return nil
}

// Get returns the value of the first property named key.
func (p Properties) Get(key string) (any, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return nil, false
}

// Feature is a GeoJSON feature. Geometry is omitted for rows without one.
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties      `json:"properties"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: TypeFeatureCollection, Features: []Feature{}}
}

// NewFeature maps one result row to a feature. The GeometryColumn value, if
// present and not empty, must be valid JSON and becomes the geometry as is;
// every other column becomes a property.
func NewFeature(columns []string, values []any) (Feature, error) {
	if len(columns) != len(values) {
		return Feature{}, fmt.Errorf("row has %d values for %d columns", len(values), len(columns))
	}

	f := Feature{Type: TypeFeature, Properties: make(Properties, 0, len(columns))}
	for i, name := range columns {
		if name == GeometryColumn {
			geometry, err := rawGeometry(values[i])
			if err != nil {
				return Feature{}, err
			}
			f.Geometry = geometry
			continue
		}
		f.Properties = append(f.Properties, Property{Key: name, Value: propertyValue(values[i])})
	}
	return f, nil
}

// rawGeometry keeps the geometry document as PostGIS wrote it, so member order
// and coordinate precision survive re-encoding.
func rawGeometry(v any) (json.RawMessage, error) {
	var raw []byte
	switch g := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(g)
	case []byte:
		raw = bytes.Clone(g)
	default:
		return nil, fmt.Errorf("unexpected %s type %T", GeometryColumn, v)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("decode %s: invalid JSON", GeometryColumn)
	}
	return json.RawMessage(raw), nil
}

// propertyValue converts driver values without a useful JSON encoding.
func propertyValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	default:
		return v
	}
}

// CollectFeatures reads all rows into a feature collection and closes rows.
func CollectFeatures(rows pgx.Rows) (*FeatureCollection, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	fc := NewFeatureCollection()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		f, err := NewFeature(columns, values)
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fc, nil
}
