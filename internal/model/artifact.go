package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
)

// ArtifactVersion is the only artifact layout this package reads
const ArtifactVersion = 1

// DefaultThreshold is used when an artifact carries no tuned threshold
const DefaultThreshold = 0.5

// FeatureSpec describes one model input as seen at training time
type FeatureSpec struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Vocabulary []string `json:"vocabulary,omitempty"`
}

// Node is a split or a leaf of a regression tree.
// Numeric splits go left when value < Threshold, categorical splits when the value is in Categories.
type Node struct {
	Leaf       bool     `json:"leaf,omitempty"`
	Value      float64  `json:"value,omitempty"`
	Feature    int      `json:"feature"`
	Threshold  float64  `json:"threshold,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Left       int      `json:"left,omitempty"`
	Right      int      `json:"right,omitempty"`
}

// Tree is a flat node list rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Artifact is the serialized boosted-tree classifier
type Artifact struct {
	Version   int           `json:"version"`
	Name      string        `json:"name"`
	TrainedAt time.Time     `json:"trained_at"`
	Features  []FeatureSpec `json:"features"`
	Bias      float64       `json:"bias"`
	Threshold float64       `json:"threshold"`
	Trees     []Tree        `json:"trees"`
}

// Load reads an artifact from path and checks it against schema.
// Every failure is reported as a model load failure.
func Load(path string, schema *features.Schema) (*Ensemble, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewModelLoadError(path, fmt.Errorf("failed to open model artifact: %w", err))
	}
	defer file.Close()

	var a Artifact
	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, apperrors.NewModelLoadError(path, fmt.Errorf("failed to decode model artifact: %w", err))
	}

	e, err := New(a, schema)
	if err != nil {
		return nil, apperrors.NewModelLoadError(path, err)
	}
	return e, nil
}

// Save writes the ensemble's artifact to path
func (e *Ensemble) Save(path string) error {
	return SaveArtifact(path, e.artifact)
}

// SaveArtifact writes a to path, creating parent directories
func SaveArtifact(path string, a Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model artifact: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(a); err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}

	return file.Sync()
}

// SpecsFor returns the feature specs a schema expects, with empty vocabularies
func SpecsFor(schema *features.Schema) []FeatureSpec {
	fields := schema.Fields()
	specs := make([]FeatureSpec, len(fields))
	for i, f := range fields {
		specs[i] = FeatureSpec{Name: f.Name, Kind: f.Kind.String()}
	}
	return specs
}
