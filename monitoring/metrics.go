package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signglove_predictions_total",
		Help: "Total number of predictions served, by letter.",
	}, []string{"letter"})

	InvalidRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signglove_invalid_requests_total",
		Help: "Total number of prediction requests rejected as invalid input.",
	})

	InferenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signglove_inference_failures_total",
		Help: "Total number of model inference failures.",
	})

	RecordsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signglove_records_stored_total",
		Help: "Total number of prediction records written to the store.",
	})

	RecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signglove_record_failures_total",
		Help: "Total number of prediction record writes that failed.",
	})

	RecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signglove_records_dropped_total",
		Help: "Total number of prediction records dropped because the queue was full.",
	})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signglove_inference_duration_seconds",
		Help:    "Wall-clock duration of a single model call.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)
