package agronomy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// HealthThresholds are inclusive NDVI lower bounds for each health class.
// Anything below Moderate is Poor.
type HealthThresholds struct {
	Excellent float64 `yaml:"excellent" json:"excellent"`
	Good      float64 `yaml:"good" json:"good"`
	Moderate  float64 `yaml:"moderate" json:"moderate"`
}

func (h HealthThresholds) Validate() error {
	for _, v := range []float64{h.Excellent, h.Good, h.Moderate} {
		if v < -1 || v > 1 {
			return fmt.Errorf("ndvi threshold %.3f outside [-1, 1]", v)
		}
	}
	if !(h.Excellent > h.Good && h.Good > h.Moderate) {
		return fmt.Errorf("thresholds must be strictly descending (excellent=%.2f good=%.2f moderate=%.2f)",
			h.Excellent, h.Good, h.Moderate)
	}
	return nil
}

// ThresholdTable maps crops to health thresholds with an optional generic fallback
type ThresholdTable struct {
	Generic *HealthThresholds             `yaml:"generic"`
	Crops   map[CropType]HealthThresholds `yaml:"crops"`
	// Strict disables the generic fallback for crops without their own row.
	Strict bool `yaml:"strict"`
}

// Lookup returns the thresholds for crop, falling back to the generic row
// unless the table is strict.
func (t ThresholdTable) Lookup(crop CropType) (HealthThresholds, error) {
	if th, ok := t.Crops[crop]; ok {
		return th, nil
	}
	if t.Generic != nil && !t.Strict {
		return *t.Generic, nil
	}
	return HealthThresholds{}, &UnsupportedCropError{Crop: crop}
}

// Clone returns a deep copy so callers cannot mutate a table in use
func (t ThresholdTable) Clone() ThresholdTable {
	out := ThresholdTable{Strict: t.Strict, Crops: make(map[CropType]HealthThresholds, len(t.Crops))}
	if t.Generic != nil {
		g := *t.Generic
		out.Generic = &g
	}
	for crop, th := range t.Crops {
		out.Crops[crop] = th
	}
	return out
}

func (t ThresholdTable) Validate() error {
	if t.Generic != nil {
		if err := t.Generic.Validate(); err != nil {
			return fmt.Errorf("generic: %w", err)
		}
	}
	crops := make([]string, 0, len(t.Crops))
	for crop := range t.Crops {
		crops = append(crops, string(crop))
	}
	sort.Strings(crops)
	for _, name := range crops {
		crop := CropType(name)
		if !crop.Valid() {
			return fmt.Errorf("unknown crop type %q in threshold table", name)
		}
		if err := t.Crops[crop].Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// RiskThresholds are the weather and moisture cutoffs used by the risk assessor
type RiskThresholds struct {
	DroughtRainfallMM float64 `yaml:"drought_rainfall_mm"`
	DroughtNDMI       float64 `yaml:"drought_ndmi"`

	FloodForecastHighMM     float64 `yaml:"flood_forecast_high_mm"`
	FloodForecastModerateMM float64 `yaml:"flood_forecast_moderate_mm"`
	FloodSaturationNDMI     float64 `yaml:"flood_saturation_ndmi"`

	DiseaseRainfallHighMM     float64 `yaml:"disease_rainfall_high_mm"`
	DiseaseRainfallModerateMM float64 `yaml:"disease_rainfall_moderate_mm"`
	DiseaseTempMinC           float64 `yaml:"disease_temp_min_c"`
	DiseaseTempMaxC           float64 `yaml:"disease_temp_max_c"`
	DiseaseTempMarginC        float64 `yaml:"disease_temp_margin_c"`

	HeatTempC float64 `yaml:"heat_temp_c"`
}

func (r RiskThresholds) Validate() error {
	switch {
	case r.FloodForecastModerateMM > r.FloodForecastHighMM:
		return fmt.Errorf("flood moderate forecast %.1f exceeds high forecast %.1f", r.FloodForecastModerateMM, r.FloodForecastHighMM)
	case r.DiseaseRainfallModerateMM > r.DiseaseRainfallHighMM:
		return fmt.Errorf("disease moderate rainfall %.1f exceeds high rainfall %.1f", r.DiseaseRainfallModerateMM, r.DiseaseRainfallHighMM)
	case r.DiseaseTempMinC > r.DiseaseTempMaxC:
		return fmt.Errorf("disease temperature band is inverted (%.1f > %.1f)", r.DiseaseTempMinC, r.DiseaseTempMaxC)
	case r.DiseaseTempMarginC < 0:
		return fmt.Errorf("disease temperature margin cannot be negative")
	}
	return nil
}

// Thresholds is the complete engine configuration, loaded once at startup
type Thresholds struct {
	Health      ThresholdTable `yaml:"health"`
	Risk        RiskThresholds `yaml:"risk"`
	Aggregation string         `yaml:"aggregation"`
}

func (t Thresholds) Validate() error {
	if err := t.Health.Validate(); err != nil {
		return fmt.Errorf("health thresholds: %w", err)
	}
	if err := t.Risk.Validate(); err != nil {
		return fmt.Errorf("risk thresholds: %w", err)
	}
	if _, err := PolicyByName(t.Aggregation); err != nil {
		return err
	}
	return nil
}

// DefaultHealthTable returns the generic table plus the per-crop overrides
func DefaultHealthTable() ThresholdTable {
	return ThresholdTable{
		Generic: &HealthThresholds{Excellent: 0.6, Good: 0.4, Moderate: 0.3},
		Crops: map[CropType]HealthThresholds{
			CropWheat:      {Excellent: 0.70, Good: 0.50, Moderate: 0.30},
			CropCorn:       {Excellent: 0.75, Good: 0.55, Moderate: 0.35},
			CropRice:       {Excellent: 0.80, Good: 0.60, Moderate: 0.40},
			CropSoybean:    {Excellent: 0.70, Good: 0.50, Moderate: 0.30},
			CropCotton:     {Excellent: 0.65, Good: 0.45, Moderate: 0.30},
			CropVegetables: {Excellent: 0.70, Good: 0.50, Moderate: 0.35},
			CropFruit:      {Excellent: 0.75, Good: 0.55, Moderate: 0.40},
		},
	}
}

// DefaultRiskThresholds returns the stock rainfall and temperature cutoffs
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		DroughtRainfallMM: 20,
		DroughtNDMI:       0.2,

		FloodForecastHighMM:     50,
		FloodForecastModerateMM: 25,
		FloodSaturationNDMI:     0.5,

		DiseaseRainfallHighMM:     80,
		DiseaseRainfallModerateMM: 50,
		DiseaseTempMinC:           20,
		DiseaseTempMaxC:           30,
		DiseaseTempMarginC:        5,

		HeatTempC: 35,
	}
}

// DefaultThresholds returns a fresh copy of the built-in configuration
func DefaultThresholds() Thresholds {
	return Thresholds{
		Health:      DefaultHealthTable(),
		Risk:        DefaultRiskThresholds(),
		Aggregation: PolicyMax,
	}
}

// LoadThresholds reads a YAML threshold file. Values present in the file
// override the defaults; crop rows are merged into the default table.
func LoadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseThresholds(data)
}

// ParseThresholds decodes YAML on top of DefaultThresholds and validates the result
func ParseThresholds(data []byte) (Thresholds, error) {
	t := DefaultThresholds()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}
