package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"signglove/config"
	"signglove/db"
	qhttp "signglove/http"
	"signglove/logging"
	"signglove/ml"
	"signglove/monitoring"
)

func main() {
	// 1. Load config (std log until zap is up)
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Init(cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	// 2. Load the model; the service cannot start without it
	model, err := ml.LoadModel(cfg.Model.Path)
	if err != nil {
		zap.S().Fatalw("failed to load model", "path", cfg.Model.Path, "err", err)
	}
	qhttp.SetClassifier(model)
	zap.S().Infow("model loaded",
		"name", model.Name(),
		"labels", len(model.Labels()),
		"features", model.NumFeatures(),
	)

	// 3. Connect to PostgreSQL; failure means degraded mode, not exit
	var store *db.Store
	var recorder *db.Recorder

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err = db.Open(ctx, db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	})
	cancel()
	if err != nil {
		zap.S().Warnw("database unavailable, predictions will not be persisted", "err", err)
		store = nil
	} else {
		recorder = db.NewRecorder(store, 256)
		qhttp.SetStatsStore(store)
		qhttp.SetRecorder(recorder)
		zap.S().Infow("database connected", "host", cfg.Database.Host, "db", cfg.Database.Name)
	}

	// 4. Live prediction feed
	feed := monitoring.NewLiveFeed()
	go feed.Run()
	qhttp.SetLiveFeed(feed)

	// 5. Start HTTP server
	serverCfg := qhttp.DefaultServerConfig()
	serverCfg.Port = cfg.Http.Port
	server := qhttp.NewServer(serverCfg)
	go func() {
		if err := server.Start(); err != nil {
			zap.S().Fatalw("HTTP server failed", "err", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down")

	if err := server.Stop(); err != nil {
		zap.S().Warnw("server forced to shutdown", "err", err)
	}
	feed.Stop()
	if recorder != nil {
		recorder.Close(10 * time.Second)
	}
	if store != nil {
		store.Close()
	}

	zap.S().Info("exiting")
}
