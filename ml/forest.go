package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TreeNode is one node of a decision tree stored as a flat array.
// Leaves carry per-class sample counts from training; interior nodes
// carry a split and child indexes into the same array.
type TreeNode struct {
	FeatureIdx  int       `json:"feature_idx"`
	Threshold   float64   `json:"threshold"`
	LeftChild   int       `json:"left_child"`
	RightChild  int       `json:"right_child"`
	IsLeaf      bool      `json:"is_leaf"`
	ClassCounts []float64 `json:"class_counts,omitempty"`
}

type forestArtifact struct {
	ModelName   string       `json:"model_name"`
	Labels      []string     `json:"labels"`
	NumFeatures int          `json:"num_features"`
	Trees       [][]TreeNode `json:"trees"`
}

// RandomForest averages per-leaf class distributions across trees.
type RandomForest struct {
	name   string
	labels []string
	arity  int
	trees  [][]TreeNode
}

// NewRandomForest validates the tree set and wraps it as a Classifier.
func NewRandomForest(name string, labels []string, numFeatures int, trees [][]TreeNode) (*RandomForest, error) {
	rf := &RandomForest{
		name:   name,
		labels: append([]string(nil), labels...),
		arity:  numFeatures,
		trees:  trees,
	}
	if err := rf.validate(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RandomForest) Name() string { return rf.name }

func (rf *RandomForest) Labels() []string {
	return append([]string(nil), rf.labels...)
}

func (rf *RandomForest) NumFeatures() int { return rf.arity }

// Predict walks every tree and averages the normalized leaf counts.
func (rf *RandomForest) Predict(features []float64) (string, map[string]float64, error) {
	if err := ValidateFeatures(features, rf.arity); err != nil {
		return "", nil, err
	}

	sums := make([]float64, len(rf.labels))
	for _, nodes := range rf.trees {
		counts, err := walkTree(nodes, features)
		if err != nil {
			return "", nil, err
		}
		total := 0.0
		for _, c := range counts {
			total += c
		}
		for i, c := range counts {
			sums[i] += c / total
		}
	}

	best := 0
	for i := range sums {
		if sums[i] > sums[best] {
			best = i
		}
	}
	probs := make(map[string]float64, len(rf.labels))
	for i, label := range rf.labels {
		probs[label] = sums[i] / float64(len(rf.trees))
	}
	return rf.labels[best], probs, nil
}

func walkTree(nodes []TreeNode, features []float64) ([]float64, error) {
	idx := 0
	for steps := 0; steps <= len(nodes); steps++ {
		node := nodes[idx]
		if node.IsLeaf {
			return node.ClassCounts, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return nil, errors.New("tree walk did not reach a leaf")
}

// Save writes the forest artifact as JSON.
func (rf *RandomForest) Save(path string) error {
	payload, err := json.Marshal(forestArtifact{
		ModelName:   rf.name,
		Labels:      rf.labels,
		NumFeatures: rf.arity,
		Trees:       rf.trees,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// LoadModel reads a forest artifact from disk. Called once at startup;
// any failure here means the process must not accept traffic.
func LoadModel(path string) (Classifier, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var artifact forestArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	name := artifact.ModelName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	rf, err := NewRandomForest(name, artifact.Labels, artifact.NumFeatures, artifact.Trees)
	if err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return rf, nil
}

func (rf *RandomForest) validate() error {
	if len(rf.labels) == 0 {
		return errors.New("label set is empty")
	}
	seen := make(map[string]bool, len(rf.labels))
	for _, label := range rf.labels {
		if label == "" {
			return errors.New("empty label")
		}
		if seen[label] {
			return fmt.Errorf("duplicate label %q", label)
		}
		seen[label] = true
	}
	if rf.arity <= 0 {
		return errors.New("num_features must be positive")
	}
	if len(rf.trees) == 0 {
		return errors.New("forest has no trees")
	}
	for t, nodes := range rf.trees {
		if len(nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, node := range nodes {
			if node.IsLeaf {
				if len(node.ClassCounts) != len(rf.labels) {
					return fmt.Errorf("tree %d node %d: class counts do not match label set", t, i)
				}
				total := 0.0
				for _, c := range node.ClassCounts {
					if c < 0 {
						return fmt.Errorf("tree %d node %d: negative class count", t, i)
					}
					total += c
				}
				if total == 0 {
					return fmt.Errorf("tree %d node %d: leaf has no samples", t, i)
				}
				continue
			}
			if node.FeatureIdx < 0 || node.FeatureIdx >= rf.arity {
				return fmt.Errorf("tree %d node %d: feature index out of range", t, i)
			}
			if node.LeftChild <= i || node.LeftChild >= len(nodes) ||
				node.RightChild <= i || node.RightChild >= len(nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", t, i)
			}
		}
	}
	return nil
}
