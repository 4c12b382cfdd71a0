package database

import (
	"time"
)

// GenericCropKey is the crop_type value of the fallback health row
const GenericCropKey = "generic"

// DefaultProfile names the risk threshold row used by the analyzer
const DefaultProfile = "default"

// CropThresholdRow is one row of crop_health_thresholds
type CropThresholdRow struct {
	CropType  string
	Excellent float64
	Good      float64
	Moderate  float64
	UpdatedAt time.Time
}

// RiskThresholdRow is one row of risk_thresholds
type RiskThresholdRow struct {
	Profile                   string
	DroughtRainfallMM         float64
	DroughtNDMI               float64
	FloodForecastHighMM       float64
	FloodForecastModerateMM   float64
	FloodSaturationNDMI       float64
	DiseaseRainfallHighMM     float64
	DiseaseRainfallModerateMM float64
	DiseaseTempMinC           float64
	DiseaseTempMaxC           float64
	DiseaseTempMarginC        float64
	HeatTempC                 float64
	Aggregation               string
	UpdatedAt                 time.Time
}
