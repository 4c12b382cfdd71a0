// Package thresholdsrc resolves the engine thresholds from the configured
// source once at process start.
package thresholdsrc

import (
	"context"
	"fmt"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/database"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

// Store is the part of the database the loader needs
type Store interface {
	LoadThresholds(ctx context.Context, strict bool) (agronomy.Thresholds, error)
}

// Load returns thresholds from defaults, a YAML file or Postgres. Connecting
// to Postgres happens only for the postgres source.
func Load(ctx context.Context, cfg *config.Config) (agronomy.Thresholds, error) {
	if cfg.Analysis.ThresholdSource != config.ThresholdSourcePostgres {
		return resolve(ctx, cfg.Analysis, nil)
	}

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		return agronomy.Thresholds{}, err
	}
	defer db.Close()

	return resolve(ctx, cfg.Analysis, db)
}

func resolve(ctx context.Context, a config.AnalysisConfig, store Store) (agronomy.Thresholds, error) {
	var th agronomy.Thresholds
	var err error

	switch a.ThresholdSource {
	case config.ThresholdSourceDefaults, "":
		th = agronomy.DefaultThresholds()
	case config.ThresholdSourceFile:
		th, err = agronomy.LoadThresholds(a.ThresholdsFile)
	case config.ThresholdSourcePostgres:
		if store == nil {
			return agronomy.Thresholds{}, fmt.Errorf("postgres threshold source needs a store")
		}
		th, err = store.LoadThresholds(ctx, a.StrictCrops)
	default:
		return agronomy.Thresholds{}, fmt.Errorf("unknown threshold source %q", a.ThresholdSource)
	}
	if err != nil {
		return agronomy.Thresholds{}, fmt.Errorf("failed to load %s thresholds: %w", a.ThresholdSource, err)
	}

	if a.StrictCrops {
		th.Health.Strict = true
	}
	if a.Aggregation != "" {
		th.Aggregation = a.Aggregation
	}
	if err := th.Validate(); err != nil {
		return agronomy.Thresholds{}, err
	}
	return th, nil
}
