// genmodel writes a synthetic random-forest artifact for local runs and
// demos. The trees are random stumps over the sensor range, biased so
// each letter is reachable; it stands in for the real trained model.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"signglove/ml"
)

var letters = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "K", "L", "O", "U", "V", "W"}

func main() {
	out := flag.String("out", "./models/rf_asl_15letters.json", "model output path")
	numTrees := flag.Int("trees", 30, "number of trees")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	trees := make([][]ml.TreeNode, *numTrees)
	for i := range trees {
		trees[i] = randomStump(rng)
	}

	forest, err := ml.NewRandomForest("rf_asl_15letters", letters, 5, trees)
	if err != nil {
		log.Fatalf("generated forest is invalid: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatalf("failed to create model dir: %v", err)
	}
	if err := forest.Save(*out); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}

	fmt.Printf("model saved to %s (%d trees, %d letters)\n", *out, *numTrees, len(letters))
}

// randomStump builds a three-node tree: one split on a random sensor,
// two leaves each biased toward a different letter.
func randomStump(rng *rand.Rand) []ml.TreeNode {
	left := rng.Intn(len(letters))
	right := rng.Intn(len(letters))

	return []ml.TreeNode{
		{
			FeatureIdx: rng.Intn(5),
			Threshold:  rng.Float64() * 1023,
			LeftChild:  1,
			RightChild: 2,
		},
		{IsLeaf: true, ClassCounts: biasedCounts(rng, left)},
		{IsLeaf: true, ClassCounts: biasedCounts(rng, right)},
	}
}

// biasedCounts gives every class a small baseline and the favored class
// a large share, mimicking an impure training leaf.
func biasedCounts(rng *rand.Rand, favored int) []float64 {
	counts := make([]float64, len(letters))
	for i := range counts {
		counts[i] = 1 + rng.Float64()*3
	}
	counts[favored] += 40 + rng.Float64()*20
	return counts
}
