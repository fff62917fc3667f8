package model

import (
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
)

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// validate checks a against schema and returns per-feature vocabulary sets
func validate(a Artifact, schema *features.Schema) ([]map[string]struct{}, error) {
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if !finite(a.Bias) {
		return nil, fmt.Errorf("bias is not finite")
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		return nil, fmt.Errorf("threshold %v outside (0, 1)", a.Threshold)
	}

	fields := schema.Fields()
	if len(a.Features) != len(fields) {
		return nil, fmt.Errorf("artifact has %d features, feature preparation produces %d", len(a.Features), len(fields))
	}

	vocab := make([]map[string]struct{}, len(fields))
	for i, f := range fields {
		spec := a.Features[i]
		if spec.Name != f.Name {
			return nil, fmt.Errorf("feature %d is %q, expected %q", i, spec.Name, f.Name)
		}
		if spec.Kind != f.Kind.String() {
			return nil, fmt.Errorf("feature %q has kind %q, expected %q", f.Name, spec.Kind, f.Kind.String())
		}

		if f.Kind != features.KindCategorical {
			if len(spec.Vocabulary) > 0 {
				return nil, fmt.Errorf("numeric feature %q carries a vocabulary", f.Name)
			}
			continue
		}

		set := make(map[string]struct{}, len(spec.Vocabulary))
		for _, c := range spec.Vocabulary {
			if _, dup := set[c]; dup {
				return nil, fmt.Errorf("feature %q repeats category %q", f.Name, c)
			}
			set[c] = struct{}{}
		}
		if _, ok := set[features.Unknown]; !ok {
			return nil, fmt.Errorf("feature %q vocabulary lacks %q", f.Name, features.Unknown)
		}
		vocab[i] = set
	}

	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("artifact has no trees")
	}
	for t, tree := range a.Trees {
		if err := validateTree(tree, fields, vocab); err != nil {
			return nil, fmt.Errorf("tree %d: %w", t, err)
		}
	}

	return vocab, nil
}

// validateTree requires children to sit after their parent, so traversal always terminates
func validateTree(tree Tree, fields []features.Field, vocab []map[string]struct{}) error {
	n := len(tree.Nodes)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}

	for i, node := range tree.Nodes {
		if node.Leaf {
			if !finite(node.Value) {
				return fmt.Errorf("node %d: leaf value is not finite", i)
			}
			continue
		}

		if node.Feature < 0 || node.Feature >= len(fields) {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.Feature)
		}
		if node.Left <= i || node.Left >= n || node.Right <= i || node.Right >= n {
			return fmt.Errorf("node %d: children %d/%d must follow the node within the tree", i, node.Left, node.Right)
		}

		f := fields[node.Feature]
		if f.Kind == features.KindCategorical {
			if len(node.Categories) == 0 {
				return fmt.Errorf("node %d: categorical split on %q has no categories", i, f.Name)
			}
			for _, c := range node.Categories {
				if _, ok := vocab[node.Feature][c]; !ok {
					return fmt.Errorf("node %d: category %q not in %q vocabulary", i, c, f.Name)
				}
			}
			continue
		}

		if len(node.Categories) > 0 {
			return fmt.Errorf("node %d: numeric split on %q carries categories", i, f.Name)
		}
		if !finite(node.Threshold) {
			return fmt.Errorf("node %d: threshold is not finite", i)
		}
	}
	return nil
}
