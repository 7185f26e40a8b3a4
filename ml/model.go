package ml

// Classifier is the read-only prediction handle shared by all requests.
// Implementations must be safe for concurrent use without locking; the
// loaded model is never mutated after startup.
type Classifier interface {
	// Predict maps one feature vector to a letter and a full probability
	// distribution over the model's label set. The distribution covers
	// every label and sums to 1.
	Predict(features []float64) (string, map[string]float64, error)
	Name() string
	Labels() []string
	NumFeatures() int
}
