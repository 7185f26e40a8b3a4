package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultDeviceID is recorded when a request carries no device identifier.
const DefaultDeviceID = "desktop-app"

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
    id BIGSERIAL PRIMARY KEY,
    letter TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    sensor_data DOUBLE PRECISION[] NOT NULL,
    device_id TEXT NOT NULL DEFAULT 'desktop-app',
    processing_time_ms DOUBLE PRECISION NOT NULL,
    predicted_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_predictions_letter ON predictions (letter);
CREATE INDEX IF NOT EXISTS idx_predictions_predicted_at ON predictions (predicted_at);
CREATE INDEX IF NOT EXISTS idx_predictions_device_id ON predictions (device_id);
`

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN builds the pgx connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// PredictionRecord is one persisted prediction row. Rows are append-only
// and never mutated after insert.
type PredictionRecord struct {
	Letter           string
	Confidence       float64
	SensorData       []float64
	DeviceID         string
	ProcessingTimeMS float64
	PredictedAt      time.Time
}

// LetterCount is one entry of the letter-frequency ranking.
type LetterCount struct {
	Letter string `json:"letter"`
	Count  int64  `json:"count"`
}

// StatsSummary aggregates the predictions table over a rolling window.
// The JSON field names are part of the API compatibility contract.
type StatsSummary struct {
	TotalPredictions int64         `json:"total_predictions"`
	AvgConfidence    float64       `json:"last_24h_avg_confidence"`
	AvgProcessingMS  float64       `json:"last_1h_avg_processing_ms"`
	TopLetters       []LetterCount `json:"top_letters_24h"`
}

// Store is the PostgreSQL prediction store. The pool is created once at
// startup and bounded; callers never hold a connection across an
// inference call.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates the connection pool, verifies connectivity, and ensures
// the schema. An error here puts the service in degraded mode rather
// than stopping startup.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Insert appends one prediction record. All fields must be present; the
// device identifier falls back to DefaultDeviceID.
func (s *Store) Insert(ctx context.Context, rec PredictionRecord) error {
	if rec.Letter == "" {
		return errors.New("record has no letter")
	}
	if len(rec.SensorData) == 0 {
		return errors.New("record has no sensor data")
	}
	deviceID := rec.DeviceID
	if deviceID == "" {
		deviceID = DefaultDeviceID
	}
	predictedAt := rec.PredictedAt
	if predictedAt.IsZero() {
		predictedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO predictions
            (letter, confidence, sensor_data, device_id, processing_time_ms, predicted_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Letter, rec.Confidence, rec.SensorData, deviceID, rec.ProcessingTimeMS, predictedAt)
	return err
}

// Summarize aggregates server-side over the given window. The average
// processing time always uses the last hour, matching the API contract.
func (s *Store) Summarize(ctx context.Context, window time.Duration) (StatsSummary, error) {
	summary := StatsSummary{TopLetters: make([]LetterCount, 0, 10)}
	now := time.Now().UTC()
	windowStart := now.Add(-window)

	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&summary.TotalPredictions)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("count predictions: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
        SELECT COALESCE(AVG(confidence), 0)
        FROM predictions
        WHERE predicted_at > $1`, windowStart).Scan(&summary.AvgConfidence)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("average confidence: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
        SELECT COALESCE(AVG(processing_time_ms), 0)
        FROM predictions
        WHERE predicted_at > $1`, now.Add(-time.Hour)).Scan(&summary.AvgProcessingMS)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("average processing time: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
        SELECT letter, COUNT(*) AS count
        FROM predictions
        WHERE predicted_at > $1
        GROUP BY letter
        ORDER BY count DESC
        LIMIT 10`, windowStart)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("letter distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lc LetterCount
		if err := rows.Scan(&lc.Letter, &lc.Count); err != nil {
			return StatsSummary{}, fmt.Errorf("scan letter count: %w", err)
		}
		summary.TopLetters = append(summary.TopLetters, lc)
	}
	if err := rows.Err(); err != nil {
		return StatsSummary{}, fmt.Errorf("letter distribution rows: %w", err)
	}

	return summary, nil
}

// Ping probes store liveness with its own short deadline so health
// checks stay bounded even when callers pass a generous context.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
