package ml

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoFeatures rejects an empty feature sequence.
	ErrNoFeatures = errors.New("feature vector is empty")
	// ErrBadArity rejects a vector whose length does not match the model.
	ErrBadArity = errors.New("feature arity mismatch")
	// ErrNotFinite rejects NaN and infinite sensor values.
	ErrNotFinite = errors.New("feature value is not finite")
)

// ValidateFeatures checks the vector the model will actually see.
// arity <= 0 skips the length check.
func ValidateFeatures(features []float64, arity int) error {
	if len(features) == 0 {
		return ErrNoFeatures
	}
	if arity > 0 && len(features) != arity {
		return fmt.Errorf("%w: got %d values, model expects %d", ErrBadArity, len(features), arity)
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: index %d", ErrNotFinite, i)
		}
	}
	return nil
}

// AggregateSamples collapses a batch of raw sensor readings into one
// feature vector via the per-channel mean. The model is trained on raw
// five-value vectors, so the mean is the only derivation that matches
// its training distribution.
func AggregateSamples(samples [][]float64, arity int) ([]float64, error) {
	if len(samples) == 0 {
		return nil, ErrNoFeatures
	}
	width := len(samples[0])
	if width == 0 {
		return nil, ErrNoFeatures
	}
	if arity > 0 && width != arity {
		return nil, fmt.Errorf("%w: got %d channels, model expects %d", ErrBadArity, width, arity)
	}
	features := make([]float64, width)
	for i, sample := range samples {
		if len(sample) != width {
			return nil, fmt.Errorf("%w: sample %d has %d values, expected %d", ErrBadArity, i, len(sample), width)
		}
		for ch, v := range sample {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: sample %d channel %d", ErrNotFinite, i, ch)
			}
			features[ch] += v
		}
	}
	for ch := range features {
		features[ch] /= float64(len(samples))
	}
	return features, nil
}

// Per-channel moment helpers used by the training exporter. Kept out of
// the request path: the served model expects raw readings, not derived
// moments.

func CalculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func CalculateStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := CalculateMean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

func CalculateRange(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}

// ChannelValues extracts one sensor channel from a batch of samples.
func ChannelValues(samples [][]float64, channel int) []float64 {
	values := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if channel >= 0 && channel < len(sample) {
			values = append(values, sample[channel])
		}
	}
	return values
}
