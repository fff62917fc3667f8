package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one raw driver record keyed by attribute name.
// Values arrive from JSON decoding: numbers, strings, booleans or nil.
type Record map[string]any

type cell struct {
	num  float64
	cat  string
	null bool
}

var nullCell = cell{null: true}

// Number returns the raw numeric value of name when it is present and finite
func (r Record) Number(name string) (float64, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return 0, false
	}
	x, isNull, ok := toFloat(v)
	if !ok || isNull || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

// coerce converts a raw value to kind. A non-empty reason means the value is malformed.
func coerce(kind Kind, v any) (cell, string) {
	if v == nil {
		return nullCell, ""
	}

	if kind == KindCategorical {
		s, ok := v.(string)
		if !ok {
			return nullCell, "is not a string"
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nullCell, ""
		}
		return cell{cat: s}, ""
	}

	x, isNull, ok := toFloat(v)
	if !ok {
		return nullCell, "is not numeric"
	}
	if isNull {
		return nullCell, ""
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nullCell, "is not finite"
	}
	if kind == KindInteger && x != math.Trunc(x) {
		return nullCell, "is not an integer"
	}
	return cell{num: x}, ""
}

func toFloat(v any) (x float64, isNull bool, ok bool) {
	switch n := v.(type) {
	case float64:
		return n, false, true
	case float32:
		return float64(n), false, true
	case int:
		return float64(n), false, true
	case int8:
		return float64(n), false, true
	case int16:
		return float64(n), false, true
	case int32:
		return float64(n), false, true
	case int64:
		return float64(n), false, true
	case uint:
		return float64(n), false, true
	case uint8:
		return float64(n), false, true
	case uint16:
		return float64(n), false, true
	case uint32:
		return float64(n), false, true
	case uint64:
		return float64(n), false, true
	case json.Number:
		f, err := n.Float64()
		return f, false, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, false, err == nil
	default:
		return 0, false, false
	}
}
