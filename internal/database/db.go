package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// RunMigrations executes all SQL files in migrationsDir in name order and
// returns the files it ran
func (db *DB) RunMigrations(migrationsDir string) ([]string, error) {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return sqlFiles, nil
}

// GetCropThresholds returns every crop_health_thresholds row
func (db *DB) GetCropThresholds(ctx context.Context) ([]CropThresholdRow, error) {
	query := `
		SELECT crop_type, excellent, good, moderate, updated_at
		FROM crop_health_thresholds
		ORDER BY crop_type
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CropThresholdRow
	for rows.Next() {
		var r CropThresholdRow
		if err := rows.Scan(&r.CropType, &r.Excellent, &r.Good, &r.Moderate, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// GetRiskThresholds returns the named risk profile, or nil when absent
func (db *DB) GetRiskThresholds(ctx context.Context, profile string) (*RiskThresholdRow, error) {
	query := `
		SELECT profile, drought_rainfall_mm, drought_ndmi,
		       flood_forecast_high_mm, flood_forecast_moderate_mm, flood_saturation_ndmi,
		       disease_rainfall_high_mm, disease_rainfall_moderate_mm,
		       disease_temp_min_c, disease_temp_max_c, disease_temp_margin_c,
		       heat_temp_c, aggregation, updated_at
		FROM risk_thresholds
		WHERE profile = $1
	`

	var r RiskThresholdRow
	err := db.QueryRowContext(ctx, query, profile).Scan(
		&r.Profile,
		&r.DroughtRainfallMM,
		&r.DroughtNDMI,
		&r.FloodForecastHighMM,
		&r.FloodForecastModerateMM,
		&r.FloodSaturationNDMI,
		&r.DiseaseRainfallHighMM,
		&r.DiseaseRainfallModerateMM,
		&r.DiseaseTempMinC,
		&r.DiseaseTempMaxC,
		&r.DiseaseTempMarginC,
		&r.HeatTempC,
		&r.Aggregation,
		&r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// LoadThresholds reads the stored tables and builds engine thresholds.
// Missing rows keep their default values.
func (db *DB) LoadThresholds(ctx context.Context, strict bool) (agronomy.Thresholds, error) {
	crops, err := db.GetCropThresholds(ctx)
	if err != nil {
		return agronomy.Thresholds{}, fmt.Errorf("failed to load crop thresholds: %w", err)
	}
	risk, err := db.GetRiskThresholds(ctx, DefaultProfile)
	if err != nil {
		return agronomy.Thresholds{}, fmt.Errorf("failed to load risk thresholds: %w", err)
	}
	return BuildThresholds(crops, risk, strict)
}

// SaveThresholds upserts every health row and the default risk profile in
// one transaction
func (db *DB) SaveThresholds(ctx context.Context, th agronomy.Thresholds) error {
	if err := th.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid thresholds: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cropQuery := `
		INSERT INTO crop_health_thresholds (crop_type, excellent, good, moderate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (crop_type) DO UPDATE
		SET excellent = EXCLUDED.excellent,
		    good = EXCLUDED.good,
		    moderate = EXCLUDED.moderate,
		    updated_at = CURRENT_TIMESTAMP
	`
	for _, row := range CropRows(th.Health) {
		if _, err := tx.ExecContext(ctx, cropQuery, row.CropType, row.Excellent, row.Good, row.Moderate); err != nil {
			return fmt.Errorf("failed to upsert thresholds for %s: %w", row.CropType, err)
		}
	}

	r := RiskRow(th)
	riskQuery := `
		INSERT INTO risk_thresholds (
			profile, drought_rainfall_mm, drought_ndmi,
			flood_forecast_high_mm, flood_forecast_moderate_mm, flood_saturation_ndmi,
			disease_rainfall_high_mm, disease_rainfall_moderate_mm,
			disease_temp_min_c, disease_temp_max_c, disease_temp_margin_c,
			heat_temp_c, aggregation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (profile) DO UPDATE
		SET drought_rainfall_mm = EXCLUDED.drought_rainfall_mm,
		    drought_ndmi = EXCLUDED.drought_ndmi,
		    flood_forecast_high_mm = EXCLUDED.flood_forecast_high_mm,
		    flood_forecast_moderate_mm = EXCLUDED.flood_forecast_moderate_mm,
		    flood_saturation_ndmi = EXCLUDED.flood_saturation_ndmi,
		    disease_rainfall_high_mm = EXCLUDED.disease_rainfall_high_mm,
		    disease_rainfall_moderate_mm = EXCLUDED.disease_rainfall_moderate_mm,
		    disease_temp_min_c = EXCLUDED.disease_temp_min_c,
		    disease_temp_max_c = EXCLUDED.disease_temp_max_c,
		    disease_temp_margin_c = EXCLUDED.disease_temp_margin_c,
		    heat_temp_c = EXCLUDED.heat_temp_c,
		    aggregation = EXCLUDED.aggregation,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err = tx.ExecContext(ctx, riskQuery,
		r.Profile,
		r.DroughtRainfallMM,
		r.DroughtNDMI,
		r.FloodForecastHighMM,
		r.FloodForecastModerateMM,
		r.FloodSaturationNDMI,
		r.DiseaseRainfallHighMM,
		r.DiseaseRainfallModerateMM,
		r.DiseaseTempMinC,
		r.DiseaseTempMaxC,
		r.DiseaseTempMarginC,
		r.HeatTempC,
		r.Aggregation,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert risk thresholds: %w", err)
	}

	return tx.Commit()
}

// BuildThresholds merges stored rows over the defaults and validates the result
func BuildThresholds(crops []CropThresholdRow, risk *RiskThresholdRow, strict bool) (agronomy.Thresholds, error) {
	th := agronomy.DefaultThresholds()
	th.Health.Strict = strict

	for _, row := range crops {
		h := agronomy.HealthThresholds{Excellent: row.Excellent, Good: row.Good, Moderate: row.Moderate}
		if row.CropType == GenericCropKey {
			th.Health.Generic = &h
			continue
		}
		crop, err := agronomy.ParseCropType(row.CropType)
		if err != nil {
			return agronomy.Thresholds{}, fmt.Errorf("crop_health_thresholds: %w", err)
		}
		th.Health.Crops[crop] = h
	}

	if risk != nil {
		th.Risk = agronomy.RiskThresholds{
			DroughtRainfallMM:         risk.DroughtRainfallMM,
			DroughtNDMI:               risk.DroughtNDMI,
			FloodForecastHighMM:       risk.FloodForecastHighMM,
			FloodForecastModerateMM:   risk.FloodForecastModerateMM,
			FloodSaturationNDMI:       risk.FloodSaturationNDMI,
			DiseaseRainfallHighMM:     risk.DiseaseRainfallHighMM,
			DiseaseRainfallModerateMM: risk.DiseaseRainfallModerateMM,
			DiseaseTempMinC:           risk.DiseaseTempMinC,
			DiseaseTempMaxC:           risk.DiseaseTempMaxC,
			DiseaseTempMarginC:        risk.DiseaseTempMarginC,
			HeatTempC:                 risk.HeatTempC,
		}
		if risk.Aggregation != "" {
			th.Aggregation = risk.Aggregation
		}
	}

	if err := th.Validate(); err != nil {
		return agronomy.Thresholds{}, err
	}
	return th, nil
}

// CropRows flattens a health table into rows, generic first
func CropRows(table agronomy.ThresholdTable) []CropThresholdRow {
	var rows []CropThresholdRow
	if table.Generic != nil {
		rows = append(rows, CropThresholdRow{
			CropType:  GenericCropKey,
			Excellent: table.Generic.Excellent,
			Good:      table.Generic.Good,
			Moderate:  table.Generic.Moderate,
		})
	}

	crops := make([]string, 0, len(table.Crops))
	for c := range table.Crops {
		crops = append(crops, string(c))
	}
	sort.Strings(crops)

	for _, c := range crops {
		h := table.Crops[agronomy.CropType(c)]
		rows = append(rows, CropThresholdRow{
			CropType:  c,
			Excellent: h.Excellent,
			Good:      h.Good,
			Moderate:  h.Moderate,
		})
	}
	return rows
}

// RiskRow converts engine risk thresholds into the default profile row
func RiskRow(th agronomy.Thresholds) RiskThresholdRow {
	r := th.Risk
	return RiskThresholdRow{
		Profile:                   DefaultProfile,
		DroughtRainfallMM:         r.DroughtRainfallMM,
		DroughtNDMI:               r.DroughtNDMI,
		FloodForecastHighMM:       r.FloodForecastHighMM,
		FloodForecastModerateMM:   r.FloodForecastModerateMM,
		FloodSaturationNDMI:       r.FloodSaturationNDMI,
		DiseaseRainfallHighMM:     r.DiseaseRainfallHighMM,
		DiseaseRainfallModerateMM: r.DiseaseRainfallModerateMM,
		DiseaseTempMinC:           r.DiseaseTempMinC,
		DiseaseTempMaxC:           r.DiseaseTempMaxC,
		DiseaseTempMarginC:        r.DiseaseTempMarginC,
		HeatTempC:                 r.HeatTempC,
		Aggregation:               th.Aggregation,
	}
}
