package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LedgerLens/ledgerlens-backend/config"
	"github.com/LedgerLens/ledgerlens-backend/handlers"
	"github.com/LedgerLens/ledgerlens-backend/logger"
	"github.com/LedgerLens/ledgerlens-backend/router"
	"github.com/LedgerLens/ledgerlens-backend/services"
	"github.com/LedgerLens/ledgerlens-backend/store/objectstore"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.InitLogger()
	defer logger.Close()
	log := logger.GetLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}

	var uploader objectstore.Uploader
	if cfg.ObjectStore.Bucket != "" {
		uploader = objectstore.NewS3Uploader(
			cfg.ObjectStore.Endpoint,
			cfg.ObjectStore.Bucket,
			cfg.ObjectStore.AccessKeyID,
			cfg.ObjectStore.SecretAccessKey,
		)
		log.Infow("Using object store transfer target", "bucket", cfg.ObjectStore.Bucket)
	} else {
		uploader = objectstore.NewLocalUploader("./uploads")
		log.Warn("Using local filesystem transfer target")
	}

	images := services.NewImageService()
	geometry := services.NewGeometryService()
	extraction := services.NewExtractionService(cfg.Extraction)
	recognizer := services.NewHTTPRecognizer(cfg.Recognition)
	processor := services.NewDocumentProcessor(recognizer, geometry, extraction)
	queue := services.NewUploadQueueService(cfg.Queue, uploader, images, processor)

	deps := router.Dependencies{
		Config:          cfg,
		DocumentHandler: handlers.NewDocumentHandler(queue),
		HealthHandler:   handlers.NewHealthHandler(cfg.Server.Version),
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Infow("Starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("Server shutdown failed", "error", err)
	}
	if err := queue.Shutdown(ctx); err != nil {
		log.Errorw("Upload queue shutdown failed", "error", err)
	}
	log.Info("Server stopped")
}
