package features

import (
	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
)

// Preparer turns raw driver records into model-ready vectors
type Preparer struct {
	schema *Schema
}

// NewPreparer creates a preparer for the canonical schema
func NewPreparer() *Preparer {
	return &Preparer{schema: DefaultSchema()}
}

// Schema returns the schema vectors are laid out in
func (p *Preparer) Schema() *Schema { return p.schema }

// PrepareOne prepares a batch of one record
func (p *Preparer) PrepareOne(rec Record) (Vector, error) {
	vs, err := p.Prepare([]Record{rec})
	if err != nil {
		return Vector{}, err
	}
	return vs[0], nil
}

// Prepare coerces, imputes, clips and derives features for a batch of records.
// Numeric nulls take the median of the field within this batch.
func (p *Preparer) Prepare(batch []Record) ([]Vector, error) {
	req := p.schema.required

	cells := make([][]cell, len(batch))
	for i, rec := range batch {
		row := make([]cell, len(req))
		for j, f := range req {
			c, reason := coerce(f.Kind, rec[f.Name])
			if reason != "" {
				return nil, apperrors.NewMalformedInputError(i, f.Name, reason)
			}
			row[j] = c
		}
		cells[i] = row
	}

	medians := make([]float64, len(req))
	for j, f := range req {
		if !f.Kind.IsNumeric() {
			continue
		}
		present := make([]float64, 0, len(batch))
		for i := range cells {
			if !cells[i][j].null {
				present = append(present, cells[i][j].num)
			}
		}
		medians[j] = median(present)
	}

	out := make([]Vector, len(batch))
	for i := range cells {
		out[i] = p.build(cells[i], medians)
	}
	return out, nil
}

func (p *Preparer) build(row []cell, medians []float64) Vector {
	values := make([]Value, 0, p.schema.Len())
	base := make(required, len(row))

	for j, f := range p.schema.required {
		c := row[j]
		if f.Kind == KindCategorical {
			cat := c.cat
			if c.null {
				cat = Unknown
			}
			values = append(values, Value{Category: cat})
			continue
		}

		// an imputed integer field keeps its fractional median
		x := c.num
		if c.null {
			x = medians[j]
		}
		x = f.Clip.apply(x)
		base[f.Name] = x
		values = append(values, Value{Number: x})
	}

	for _, d := range p.schema.derivations {
		values = append(values, Value{Number: d.fn(base)})
	}

	return Vector{schema: p.schema, values: values}
}
