package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/database"
	"github.com/smukkama/farm-analyzer/internal/logger"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

// Runs migrations and seeds the threshold tables from a YAML file or the
// built-in defaults.
func main() {
	migrations := flag.String("migrations", "migrations", "directory of SQL migration files")
	file := flag.String("file", "", "YAML thresholds file to seed from (defaults when empty)")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations without seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File, "thresholds")
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Connected to database")

	applied, err := db.RunMigrations(*migrations)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.WithField("files", applied).Info("Migrations completed")

	if *migrateOnly {
		return
	}

	th := agronomy.DefaultThresholds()
	source := "defaults"
	if *file != "" {
		th, err = agronomy.LoadThresholds(*file)
		if err != nil {
			log.Fatalf("Failed to read thresholds: %v", err)
		}
		source = *file
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.SaveThresholds(ctx, th); err != nil {
		log.Fatalf("Failed to save thresholds: %v", err)
	}
	log.WithFields(logrus.Fields{
		"source":      source,
		"crop_rows":   len(database.CropRows(th.Health)),
		"aggregation": th.Aggregation,
	}).Info("Thresholds seeded")
}
