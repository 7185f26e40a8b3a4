package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"signglove/db"
	"signglove/ml"
	"signglove/monitoring"
)

const serviceVersion = "1.0.0"

// RecordSink is the fire-and-forget persistence hook. Enqueue must
// never block.
type RecordSink interface {
	Enqueue(rec db.PredictionRecord) bool
}

// StatsStore serves aggregate queries and health probes.
type StatsStore interface {
	Summarize(ctx context.Context, window time.Duration) (db.StatsSummary, error)
	Ping(ctx context.Context) error
}

var (
	classifier ml.Classifier
	recorder   RecordSink
	store      StatsStore
	liveFeed   *monitoring.LiveFeed

	startTime = time.Now()
)

type cachedStats struct {
	summary db.StatsSummary
	fetched time.Time
}

// statsCache is a small read-through cache keyed by window hours. A
// stale entry doubles as the degraded-mode answer when the store is
// unreachable.
var statsCache, _ = lru.New[int, cachedStats](8)

const statsCacheTTL = 30 * time.Second

// SetClassifier installs the loaded model handle. Called once at
// startup, before the server starts; the handle is immutable afterward.
func SetClassifier(c ml.Classifier) {
	classifier = c
}

// SetRecorder installs the async persistence sink.
func SetRecorder(r RecordSink) {
	recorder = r
}

// SetStatsStore installs the aggregate-query store.
func SetStatsStore(s StatsStore) {
	store = s
}

// SetLiveFeed installs the WebSocket broadcast hub.
func SetLiveFeed(f *monitoring.LiveFeed) {
	liveFeed = f
}

// RegisterHandlers registers the service routes.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /predict", handlePredict)
	mux.HandleFunc("GET /stats", handleStats)
	mux.HandleFunc("GET /ws/predictions", handleLiveFeed)
}

type predictRequest struct {
	FlexSensors []float64   `json:"flex_sensors"`
	Samples     [][]float64 `json:"samples,omitempty"`
	DeviceID    string      `json:"device_id,omitempty"`
	Timestamp   float64     `json:"timestamp,omitempty"`
}

type predictResponse struct {
	Letter           string             `json:"letter"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
	ModelName        string             `json:"model_name"`
	Timestamp        float64            `json:"timestamp"`
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	if classifier == nil {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		monitoring.InvalidRequests.Inc()
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	features, err := requestFeatures(req, classifier.NumFeatures())
	if err != nil {
		monitoring.InvalidRequests.Inc()
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	inferenceStart := time.Now()
	letter, probs, err := classifier.Predict(features)
	elapsed := time.Since(inferenceStart)

	if err != nil {
		// Validation already ran, so this is a model fault, not a
		// client fault.
		monitoring.InferenceFailures.Inc()
		zap.S().Errorw("inference failed", "id", GetRequestID(r.Context()), "err", err)
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	if _, known := probs[letter]; !known {
		monitoring.InferenceFailures.Inc()
		zap.S().Errorw("model returned unknown label", "id", GetRequestID(r.Context()), "letter", letter)
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	processingMS := float64(elapsed) / float64(time.Millisecond)
	monitoring.InferenceDuration.Observe(elapsed.Seconds())
	monitoring.PredictionsServed.WithLabelValues(letter).Inc()

	respondJSON(w, predictResponse{
		Letter:           letter,
		Confidence:       probs[letter],
		AllProbabilities: probs,
		ProcessingTimeMS: processingMS,
		ModelName:        classifier.Name(),
		Timestamp:        float64(time.Now().UnixNano()) / 1e9,
	})

	// Side effects after the response: never block, never fail the
	// request.
	record := db.PredictionRecord{
		Letter:           letter,
		Confidence:       probs[letter],
		SensorData:       features,
		DeviceID:         req.DeviceID,
		ProcessingTimeMS: processingMS,
		PredictedAt:      requestTime(req.Timestamp),
	}
	if recorder != nil {
		recorder.Enqueue(record)
	}
	if liveFeed != nil {
		deviceID := req.DeviceID
		if deviceID == "" {
			deviceID = db.DefaultDeviceID
		}
		liveFeed.Publish(monitoring.PredictionEvent{
			Letter:           letter,
			Confidence:       probs[letter],
			DeviceID:         deviceID,
			ProcessingTimeMS: processingMS,
			Timestamp:        float64(record.PredictedAt.UnixNano()) / 1e9,
		})
	}
}

// requestFeatures resolves the feature vector: either pre-aggregated
// readings or a raw sample batch collapsed to the model's arity.
func requestFeatures(req predictRequest, arity int) ([]float64, error) {
	if len(req.Samples) > 0 {
		if len(req.FlexSensors) > 0 {
			return nil, errors.New("provide flex_sensors or samples, not both")
		}
		return ml.AggregateSamples(req.Samples, arity)
	}
	if err := ml.ValidateFeatures(req.FlexSensors, arity); err != nil {
		return nil, err
	}
	return req.FlexSensors, nil
}

func requestTime(ts float64) time.Time {
	if ts > 0 {
		return time.Unix(0, int64(ts*1e9)).UTC()
	}
	return time.Now().UTC()
}

type healthResponse struct {
	Status            string  `json:"status"`
	ModelLoaded       bool    `json:"model_loaded"`
	ModelName         string  `json:"model_name"`
	DatabaseConnected bool    `json:"database_connected"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		ModelLoaded:   classifier != nil,
		UptimeSeconds: time.Since(startTime).Seconds(),
	}
	if classifier != nil {
		resp.ModelName = classifier.Name()
		resp.Status = "healthy"
	} else {
		resp.Status = "degraded"
	}
	if store != nil {
		resp.DatabaseConnected = store.Ping(r.Context()) == nil
	}

	respondJSON(w, resp)
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		if v, err := strconv.Atoi(h); err == nil && v >= 1 && v <= 168 {
			hours = v
		}
	}

	cached, haveCached := statsCache.Get(hours)
	if haveCached && time.Since(cached.fetched) < statsCacheTTL {
		respondJSON(w, cached.summary)
		return
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		summary, err := store.Summarize(ctx, time.Duration(hours)*time.Hour)
		if err == nil {
			statsCache.Add(hours, cachedStats{summary: summary, fetched: time.Now()})
			respondJSON(w, summary)
			return
		}
		zap.S().Warnw("stats query failed, serving degraded response", "err", err)
	}

	// Store down or absent: a stale summary beats an error, zeros beat
	// nothing.
	if haveCached {
		respondJSON(w, cached.summary)
		return
	}
	respondJSON(w, db.StatsSummary{TopLetters: []db.LetterCount{}})
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	modelName := "not loaded"
	if classifier != nil {
		modelName = classifier.Name()
	}

	respondJSON(w, map[string]interface{}{
		"service": "ASL Glove Inference API",
		"version": serviceVersion,
		"status":  "operational",
		"endpoints": map[string]string{
			"predict": "POST /predict",
			"health":  "GET /health",
			"stats":   "GET /stats",
			"metrics": "GET /metrics",
			"live":    "GET /ws/predictions",
		},
		"model": modelName,
	})
}

func handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	if liveFeed == nil {
		respondError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}
	liveFeed.HandleWebSocket(w, r)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Warnw("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
