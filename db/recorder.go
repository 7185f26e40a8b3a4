package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"signglove/monitoring"
)

type inserter interface {
	Insert(ctx context.Context, rec PredictionRecord) error
}

// Recorder is the fire-and-forget persistence sink. The predict handler
// enqueues without blocking; a single worker drains the queue so a slow
// or dead store never delays a prediction response.
type Recorder struct {
	sink    inserter
	queue   chan PredictionRecord
	done    chan struct{}
	timeout time.Duration
}

// NewRecorder starts the background writer.
func NewRecorder(sink inserter, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		sink:    sink,
		queue:   make(chan PredictionRecord, queueSize),
		done:    make(chan struct{}),
		timeout: 3 * time.Second,
	}
	go r.run()
	return r
}

// Enqueue hands a record to the writer without blocking. A full queue
// drops the record; the prediction response is already on the wire and
// must not be held up by logging.
func (r *Recorder) Enqueue(rec PredictionRecord) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		monitoring.RecordsDropped.Inc()
		zap.S().Warnw("record queue full, dropping prediction log", "letter", rec.Letter)
		return false
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.sink.Insert(ctx, rec)
		cancel()
		if err != nil {
			monitoring.RecordFailures.Inc()
			zap.S().Warnw("prediction log write failed", "letter", rec.Letter, "err", err)
			continue
		}
		monitoring.RecordsStored.Inc()
	}
}

// Close stops intake and drains pending writes, bounded by the given
// timeout. Call only after the HTTP server has stopped accepting
// requests.
func (r *Recorder) Close(timeout time.Duration) {
	close(r.queue)
	select {
	case <-r.done:
	case <-time.After(timeout):
		zap.S().Warn("recorder drain timed out, pending records lost")
	}
}
