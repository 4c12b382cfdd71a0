package agronomy

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CropType is one of the crops the engine knows thresholds for
type CropType string

const (
	CropWheat      CropType = "wheat"
	CropCorn       CropType = "corn"
	CropRice       CropType = "rice"
	CropSoybean    CropType = "soybean"
	CropCotton     CropType = "cotton"
	CropVegetables CropType = "vegetables"
	CropFruit      CropType = "fruit"
	CropOther      CropType = "other"
)

// CropTypes lists the closed set of supported crops
var CropTypes = []CropType{
	CropWheat, CropCorn, CropRice, CropSoybean,
	CropCotton, CropVegetables, CropFruit, CropOther,
}

// ParseCropType normalizes s and checks it against the closed crop set
func ParseCropType(s string) (CropType, error) {
	c := CropType(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "crop_type", Reason: fmt.Sprintf("unknown crop type %q", s)}
	}
	return c, nil
}

// Valid reports whether c belongs to the closed crop set
func (c CropType) Valid() bool {
	for _, known := range CropTypes {
		if c == known {
			return true
		}
	}
	return false
}

// CropContext describes what is planted and when
type CropContext struct {
	CropType     CropType
	PlantingDate *time.Time
}

// NewCropContext parses the crop type and keeps the optional planting date
func NewCropContext(crop string, plantingDate *time.Time) (CropContext, error) {
	c, err := ParseCropType(crop)
	if err != nil {
		return CropContext{}, err
	}
	return CropContext{CropType: c, PlantingDate: plantingDate}, nil
}

func (c CropContext) Validate() error {
	if !c.CropType.Valid() {
		return &ValidationError{Field: "crop_type", Reason: fmt.Sprintf("unknown crop type %q", c.CropType)}
	}
	return nil
}

// WeatherSummary holds the 30-day history and 7-day forecast aggregates
// produced by the weather collaborator
type WeatherSummary struct {
	TotalRainfall30d  float64 `json:"total_rainfall_30d"`
	AvgTemperature    float64 `json:"avg_temperature"`
	ForecastRain7d    float64 `json:"forecast_rain_7d"`
	DroughtRisk       bool    `json:"drought_risk"`
	FloodRisk         bool    `json:"flood_risk"`
	TemperatureStress bool    `json:"temperature_stress"`
}

// NewWeatherSummary builds a summary and rejects out-of-range values
func NewWeatherSummary(rain30d, avgTemp, forecast7d float64, drought, flood, tempStress bool) (WeatherSummary, error) {
	w := WeatherSummary{
		TotalRainfall30d:  rain30d,
		AvgTemperature:    avgTemp,
		ForecastRain7d:    forecast7d,
		DroughtRisk:       drought,
		FloodRisk:         flood,
		TemperatureStress: tempStress,
	}
	if err := w.Validate(); err != nil {
		return WeatherSummary{}, err
	}
	return w, nil
}

func (w WeatherSummary) Validate() error {
	if err := checkFinite("avg_temperature", w.AvgTemperature); err != nil {
		return err
	}
	if err := checkRainfall("total_rainfall_30d", w.TotalRainfall30d); err != nil {
		return err
	}
	return checkRainfall("forecast_rain_7d", w.ForecastRain7d)
}

// VegetationIndices are field-mean NDVI and NDMI values
type VegetationIndices struct {
	NDVI float64 `json:"ndvi"`
	NDMI float64 `json:"ndmi"`
}

// NewVegetationIndices builds indices and enforces the [-1, 1] range
func NewVegetationIndices(ndvi, ndmi float64) (VegetationIndices, error) {
	v := VegetationIndices{NDVI: ndvi, NDMI: ndmi}
	if err := v.Validate(); err != nil {
		return VegetationIndices{}, err
	}
	return v, nil
}

func (v VegetationIndices) Validate() error {
	if err := checkIndex("ndvi", v.NDVI); err != nil {
		return err
	}
	return checkIndex("ndmi", v.NDMI)
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return nil
}

func checkRainfall(field string, v float64) error {
	if err := checkFinite(field, v); err != nil {
		return err
	}
	if v < 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("rainfall cannot be negative (got %.2f)", v)}
	}
	return nil
}

func checkIndex(field string, v float64) error {
	if err := checkFinite(field, v); err != nil {
		return err
	}
	if v < -1 || v > 1 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be within [-1, 1] (got %.3f)", v)}
	}
	return nil
}

// RiskProfile holds the independently assessed hazards and their aggregate
type RiskProfile struct {
	Drought RiskLevel `json:"drought"`
	Flood   RiskLevel `json:"flood"`
	Disease RiskLevel `json:"disease"`
	Heat    RiskLevel `json:"heat"`
	Overall RiskLevel `json:"overall"`
}

// Dimensions returns the four hazard levels in recommendation order
func (p RiskProfile) Dimensions() []RiskLevel {
	return []RiskLevel{p.Drought, p.Flood, p.Disease, p.Heat}
}

// AnalysisResult is the assessment handed to the report renderer
type AnalysisResult struct {
	GrowthStage     GrowthStage `json:"growth_stage"`
	CropHealth      CropHealth  `json:"crop_health"`
	RiskProfile     RiskProfile `json:"risk_profile"`
	Recommendations []string    `json:"recommendations"`
}
