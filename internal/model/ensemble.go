package model

import (
	"fmt"
	"math"
	"time"

	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
)

// Ensemble is a loaded, validated classifier. It is immutable after construction
// and safe for concurrent use.
type Ensemble struct {
	artifact Artifact
	schema   *features.Schema
	vocab    []map[string]struct{}
	splits   [][]map[string]struct{}
}

// Prediction is the classifier output for one vector
type Prediction struct {
	Probability float64 `json:"probability"`
	HighRisk    bool    `json:"high_risk"`
	Threshold   float64 `json:"threshold"`
}

// Info summarizes the loaded artifact
type Info struct {
	Name      string  `json:"name"`
	Version   int     `json:"version"`
	TrainedAt string  `json:"trained_at,omitempty"`
	Trees     int     `json:"trees"`
	Features  int     `json:"features"`
	Threshold float64 `json:"threshold"`
}

// New validates a against schema and builds an ensemble from it
func New(a Artifact, schema *features.Schema) (*Ensemble, error) {
	if a.Threshold == 0 {
		a.Threshold = DefaultThreshold
	}

	vocab, err := validate(a, schema)
	if err != nil {
		return nil, err
	}

	splits := make([][]map[string]struct{}, len(a.Trees))
	for t, tree := range a.Trees {
		splits[t] = make([]map[string]struct{}, len(tree.Nodes))
		for i, node := range tree.Nodes {
			if node.Leaf || len(node.Categories) == 0 {
				continue
			}
			set := make(map[string]struct{}, len(node.Categories))
			for _, c := range node.Categories {
				set[c] = struct{}{}
			}
			splits[t][i] = set
		}
	}

	return &Ensemble{artifact: a, schema: schema, vocab: vocab, splits: splits}, nil
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Score returns the probability of a claim for v
func (e *Ensemble) Score(v features.Vector) (float64, error) {
	if v.Len() != len(e.artifact.Features) {
		return 0, fmt.Errorf("vector has %d features, model expects %d", v.Len(), len(e.artifact.Features))
	}

	margin := e.artifact.Bias
	for t := range e.artifact.Trees {
		margin += e.leaf(t, v)
	}

	p := sigmoid(margin)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p, nil
}

// Predict scores v and applies the artifact's decision threshold
func (e *Ensemble) Predict(v features.Vector) (Prediction, error) {
	p, err := e.Score(v)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Probability: p,
		HighRisk:    p >= e.artifact.Threshold,
		Threshold:   e.artifact.Threshold,
	}, nil
}

func (e *Ensemble) leaf(t int, v features.Vector) float64 {
	nodes := e.artifact.Trees[t].Nodes
	i := 0
	for {
		node := nodes[i]
		if node.Leaf {
			return node.Value
		}
		if e.goLeft(t, i, node, v) {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

func (e *Ensemble) goLeft(t, i int, node Node, v features.Vector) bool {
	set := e.splits[t][i]
	if set == nil {
		return v.At(node.Feature).Number < node.Threshold
	}

	c := v.At(node.Feature).Category
	if _, known := e.vocab[node.Feature][c]; !known {
		c = features.Unknown
	}
	_, in := set[c]
	return in
}

// Threshold returns the decision threshold
func (e *Ensemble) Threshold() float64 { return e.artifact.Threshold }

// Artifact returns a copy of the underlying artifact
func (e *Ensemble) Artifact() Artifact {
	a := e.artifact
	a.Features = append([]FeatureSpec(nil), e.artifact.Features...)
	a.Trees = append([]Tree(nil), e.artifact.Trees...)
	return a
}

// Info summarizes the loaded artifact
func (e *Ensemble) Info() Info {
	info := Info{
		Name:      e.artifact.Name,
		Version:   e.artifact.Version,
		Trees:     len(e.artifact.Trees),
		Features:  len(e.artifact.Features),
		Threshold: e.artifact.Threshold,
	}
	if !e.artifact.TrainedAt.IsZero() {
		info.TrainedAt = e.artifact.TrainedAt.Format(time.RFC3339)
	}
	return info
}
