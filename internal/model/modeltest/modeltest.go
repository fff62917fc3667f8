// Package modeltest builds small deterministic ensembles for tests.
package modeltest

import (
	"testing"
	"time"

	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
	"github.com/ZanzyTHEbar/kbm-risk/internal/model"
	"github.com/stretchr/testify/require"
)

// Vocabularies used by Artifact for the categorical fields
var Vocabularies = map[string][]string{
	"vehicle_type":    {features.Unknown, "sedan", "suv", "truck"},
	"vehicle_purpose": {features.Unknown, "personal", "taxi", "commercial"},
	"region":          {features.Unknown, "moscow", "spb", "kazan"},
	"occupation_type": {features.Unknown, "office", "driver", "student"},
}

func index(schema *features.Schema, name string) int {
	i, ok := schema.Index(name)
	if !ok {
		panic("modeltest: unknown feature " + name)
	}
	return i
}

func numericSplit(feature int, threshold, left, right float64) model.Tree {
	return model.Tree{Nodes: []model.Node{
		{Feature: feature, Threshold: threshold, Left: 1, Right: 2},
		{Leaf: true, Value: left},
		{Leaf: true, Value: right},
	}}
}

func categoricalSplit(feature int, categories []string, left, right float64) model.Tree {
	return model.Tree{Nodes: []model.Node{
		{Feature: feature, Categories: categories, Left: 1, Right: 2},
		{Leaf: true, Value: left},
		{Leaf: true, Value: right},
	}}
}

// Artifact returns a five-tree artifact laid out for schema.
//
// A clean 35-year-old personal driver in moscow with no claims scores about 0.13;
// a 22-year-old taxi driver in spb with claims, violations and night driving about 0.89.
func Artifact(schema *features.Schema) model.Artifact {
	specs := model.SpecsFor(schema)
	for i := range specs {
		if v, ok := Vocabularies[specs[i].Name]; ok {
			specs[i].Vocabulary = append([]string(nil), v...)
		}
	}

	return model.Artifact{
		Version:   model.ArtifactVersion,
		Name:      "kbm-risk-test",
		TrainedAt: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Features:  specs,
		Bias:      -0.6,
		Threshold: 0.5,
		Trees: []model.Tree{
			numericSplit(index(schema, "num_claims"), 0.5, -0.9, 1.1),
			categoricalSplit(index(schema, "region"), []string{"moscow"}, 0.25, -0.1),
			{Nodes: []model.Node{
				{Feature: index(schema, "driver_age"), Threshold: 25, Left: 1, Right: 2},
				{Feature: index(schema, "night_driving_ratio"), Threshold: 0.3, Left: 3, Right: 4},
				{Leaf: true, Value: -0.3},
				{Leaf: true, Value: 0.2},
				{Leaf: true, Value: 0.7},
			}},
			categoricalSplit(index(schema, "vehicle_purpose"), []string{"taxi", "commercial"}, 0.6, -0.15),
			numericSplit(index(schema, "violations_per_year"), 0.2, -0.2, 0.4),
		},
	}
}

// Ensemble returns the ensemble built from Artifact for the default schema
func Ensemble(t testing.TB) *model.Ensemble {
	t.Helper()

	e, err := model.New(Artifact(features.DefaultSchema()), features.DefaultSchema())
	require.NoError(t, err)
	return e
}

// CleanDriver is a low-risk raw record
func CleanDriver() features.Record {
	return features.Record{
		"driver_age":             35.0,
		"driver_experience":      12.0,
		"vehicle_age":            5.0,
		"vehicle_type":           "sedan",
		"engine_power":           150.0,
		"vehicle_purpose":        "personal",
		"region":                 "moscow",
		"pct_days_with_snow":     0.3,
		"pct_days_with_rain":     0.2,
		"winter_duration_months": 5.0,
		"base_kbm":               1.0,
		"num_claims":             0.0,
		"violation_count":        1.0,
		"days_since_last_claim":  1095.0,
		"occupation_type":        "office",
		"avg_trips_per_week":     10.0,
		"night_driving_ratio":    0.1,
		"ko_multiplier":          1.0,
		"num_owned_vehicles":     1.0,
	}
}

// RiskyDriver is a high-risk raw record
func RiskyDriver() features.Record {
	return features.Record{
		"driver_age":             22.0,
		"driver_experience":      2.0,
		"vehicle_age":            12.0,
		"vehicle_type":           "sedan",
		"engine_power":           200.0,
		"vehicle_purpose":        "taxi",
		"region":                 "spb",
		"pct_days_with_snow":     0.4,
		"pct_days_with_rain":     0.3,
		"winter_duration_months": 5.0,
		"base_kbm":               1.0,
		"num_claims":             2.0,
		"violation_count":        3.0,
		"days_since_last_claim":  120.0,
		"occupation_type":        "driver",
		"avg_trips_per_week":     25.0,
		"night_driving_ratio":    0.5,
		"ko_multiplier":          1.0,
		"num_owned_vehicles":     1.0,
	}
}
