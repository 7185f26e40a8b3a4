package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signglove/db"
)

type fakeStatsStore struct {
	summary db.StatsSummary
	err     error
	pingErr error
	calls   int
}

func (f *fakeStatsStore) Summarize(ctx context.Context, window time.Duration) (db.StatsSummary, error) {
	f.calls++
	if f.err != nil {
		return db.StatsSummary{}, f.err
	}
	return f.summary, nil
}

func (f *fakeStatsStore) Ping(ctx context.Context) error { return f.pingErr }

func doGet(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func newStatsMux(t *testing.T, store *fakeStatsStore) *http.ServeMux {
	t.Helper()
	statsCache.Purge()
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	if store != nil {
		SetStatsStore(store)
	}
	t.Cleanup(func() {
		SetStatsStore(nil)
		statsCache.Purge()
	})
	return mux
}

func TestHealthWithModelAndStore(t *testing.T) {
	mux := newStatsMux(t, &fakeStatsStore{})
	SetClassifier(&fakeClassifier{letter: "A", probs: evenProbs("A")})
	t.Cleanup(func() { SetClassifier(nil) })

	w := doGet(mux, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", resp.Status)
	}
	if !resp.ModelLoaded || resp.ModelName != "rf_test" {
		t.Fatalf("model fields wrong: %+v", resp)
	}
	if !resp.DatabaseConnected {
		t.Fatalf("store ping succeeds, database_connected should be true")
	}
	if resp.UptimeSeconds < 0 {
		t.Fatalf("uptime negative: %v", resp.UptimeSeconds)
	}
}

func TestHealthDegradedWithoutStore(t *testing.T) {
	mux := newStatsMux(t, nil)
	SetClassifier(&fakeClassifier{letter: "A", probs: evenProbs("A")})
	t.Cleanup(func() { SetClassifier(nil) })

	w := doGet(mux, "/health")
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.DatabaseConnected {
		t.Fatalf("no store installed, database_connected should be false")
	}
	if resp.Status != "healthy" {
		t.Fatalf("missing store must not mark the service unhealthy, got %q", resp.Status)
	}
}

func TestHealthDegradedWithoutModel(t *testing.T) {
	mux := newStatsMux(t, nil)

	w := doGet(mux, "/health")
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "degraded" || resp.ModelLoaded {
		t.Fatalf("expected degraded without a model, got %+v", resp)
	}
}

func TestHealthReportsPingFailure(t *testing.T) {
	mux := newStatsMux(t, &fakeStatsStore{pingErr: errors.New("down")})

	w := doGet(mux, "/health")
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.DatabaseConnected {
		t.Fatalf("failed ping must report database_connected=false")
	}
}

func TestStatsSuccess(t *testing.T) {
	store := &fakeStatsStore{summary: db.StatsSummary{
		TotalPredictions: 42,
		AvgConfidence:    0.87,
		AvgProcessingMS:  1.4,
		TopLetters:       []db.LetterCount{{Letter: "A", Count: 20}, {Letter: "B", Count: 12}},
	}}
	mux := newStatsMux(t, store)

	w := doGet(mux, "/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp db.StatsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.TotalPredictions != 42 || len(resp.TopLetters) != 2 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
	if resp.TopLetters[0].Letter != "A" {
		t.Fatalf("top letter order lost: %+v", resp.TopLetters)
	}
}

func TestStatsCachesResults(t *testing.T) {
	store := &fakeStatsStore{summary: db.StatsSummary{TotalPredictions: 7}}
	mux := newStatsMux(t, store)

	doGet(mux, "/stats")
	doGet(mux, "/stats")
	if store.calls != 1 {
		t.Fatalf("second request within TTL should hit the cache, got %d store calls", store.calls)
	}

	// a different window is a different cache key
	doGet(mux, "/stats?hours=1")
	if store.calls != 2 {
		t.Fatalf("distinct window must query the store, got %d calls", store.calls)
	}
}

func TestStatsStoreFailureServesZeros(t *testing.T) {
	mux := newStatsMux(t, &fakeStatsStore{err: errors.New("connection refused")})

	w := doGet(mux, "/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("store failure must not surface as an error, got %d", w.Code)
	}

	var resp db.StatsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.TotalPredictions != 0 {
		t.Fatalf("expected zero counts, got %+v", resp)
	}
	if resp.TopLetters == nil {
		t.Fatalf("top_letters_24h must be an empty array, not null")
	}
}

func TestStatsFailureAfterSuccessServesStale(t *testing.T) {
	store := &fakeStatsStore{summary: db.StatsSummary{TotalPredictions: 99}}
	mux := newStatsMux(t, store)

	doGet(mux, "/stats")

	// expire the entry, then break the store
	statsCache.Add(24, cachedStats{summary: store.summary, fetched: time.Now().Add(-time.Minute)})
	store.err = errors.New("connection refused")

	w := doGet(mux, "/stats")
	var resp db.StatsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.TotalPredictions != 99 {
		t.Fatalf("expected the stale summary, got %+v", resp)
	}
}

func TestStatsClampsWindow(t *testing.T) {
	store := &fakeStatsStore{}
	mux := newStatsMux(t, store)

	for _, q := range []string{"hours=0", "hours=-3", "hours=9999", "hours=abc"} {
		doGet(mux, "/stats?"+q)
	}
	// all invalid windows fall back to 24h, and the first call caches it
	if store.calls != 1 {
		t.Fatalf("invalid windows should share the 24h default, got %d calls", store.calls)
	}
}

func TestRootListsEndpoints(t *testing.T) {
	mux := newStatsMux(t, nil)

	w := doGet(mux, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Service   string            `json:"service"`
		Status    string            `json:"status"`
		Endpoints map[string]string `json:"endpoints"`
		Model     string            `json:"model"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Service == "" || resp.Status != "operational" {
		t.Fatalf("unexpected root payload: %+v", resp)
	}
	for _, key := range []string{"predict", "health", "stats", "metrics"} {
		if resp.Endpoints[key] == "" {
			t.Fatalf("endpoint %q missing from root listing", key)
		}
	}
	if resp.Model != "not loaded" {
		t.Fatalf("without a model root should report it, got %q", resp.Model)
	}
}

func TestRootUnknownPathIs404(t *testing.T) {
	mux := newStatsMux(t, nil)

	w := doGet(mux, "/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", w.Code)
	}
}
