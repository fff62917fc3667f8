package features

import (
	"encoding/json"
	"fmt"
)

// Value is one slot of a Vector. Categorical fields use Category, all others Number.
type Value struct {
	Number   float64
	Category string
}

// Vector is a prepared feature row laid out in schema order
type Vector struct {
	schema *Schema
	values []Value
}

// NewVector builds a vector from values in schema order
func NewVector(schema *Schema, values []Value) (Vector, error) {
	if len(values) != schema.Len() {
		return Vector{}, fmt.Errorf("vector has %d values, schema has %d fields", len(values), schema.Len())
	}
	return Vector{schema: schema, values: append([]Value(nil), values...)}, nil
}

// Schema returns the schema the vector was prepared with
func (v Vector) Schema() *Schema { return v.schema }

// Len returns the number of fields
func (v Vector) Len() int { return len(v.values) }

// At returns the value at position i
func (v Vector) At(i int) Value { return v.values[i] }

// Number returns the numeric value of name
func (v Vector) Number(name string) (float64, bool) {
	i, ok := v.schema.Index(name)
	if !ok || v.schema.Field(i).Kind == KindCategorical {
		return 0, false
	}
	return v.values[i].Number, true
}

// Category returns the categorical value of name
func (v Vector) Category(name string) (string, bool) {
	i, ok := v.schema.Index(name)
	if !ok || v.schema.Field(i).Kind != KindCategorical {
		return "", false
	}
	return v.values[i].Category, true
}

// Map returns the vector keyed by field name
func (v Vector) Map() map[string]any {
	out := make(map[string]any, len(v.values))
	for i, f := range v.schema.fields {
		if f.Kind == KindCategorical {
			out[f.Name] = v.values[i].Category
		} else {
			out[f.Name] = v.values[i].Number
		}
	}
	return out
}

// MarshalJSON renders the vector as an object keyed by field name
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}
