package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/api"
	"github.com/smukkama/farm-analyzer/internal/logger"
	"github.com/smukkama/farm-analyzer/internal/thresholdsrc"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File, "api")
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	th, err := thresholdsrc.Load(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to load thresholds: %v", err)
	}
	analyzer, err := agronomy.NewAnalyzer(th)
	if err != nil {
		log.Fatalf("Failed to build analyzer: %v", err)
	}

	app := api.NewApp(analyzer, api.Config{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, log)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		log.WithField("addr", addr).Info("API server starting")
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down API server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}
	log.Info("API server stopped")
}
