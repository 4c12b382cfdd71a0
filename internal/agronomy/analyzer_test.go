package agronomy

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultThresholds(), WithClock(func() time.Time { return date(2024, 7, 1) }))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return a
}

func validInput() Input {
	planted := date(2024, 5, 17) // 45 days before 2024-07-01
	return Input{
		Crop:    CropContext{CropType: CropWheat, PlantingDate: &planted},
		Weather: WeatherSummary{TotalRainfall30d: 15, AvgTemperature: 28, ForecastRain7d: 5, DroughtRisk: true},
		Indices: VegetationIndices{NDVI: 0.65, NDMI: 0.15},
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := newTestAnalyzer(t)

	result, err := a.Analyze(validInput())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.GrowthStage != StageVegetative {
		t.Errorf("Expected Vegetative, got %s", result.GrowthStage)
	}
	if result.CropHealth != HealthGood {
		t.Errorf("Expected Good, got %s", result.CropHealth)
	}
	if result.RiskProfile.Drought != RiskHigh || result.RiskProfile.Flood != RiskLow {
		t.Errorf("Unexpected risk profile: %+v", result.RiskProfile)
	}
	if result.RiskProfile.Overall != RiskHigh {
		t.Errorf("Expected overall High, got %s", result.RiskProfile.Overall)
	}
	if len(result.Recommendations) == 0 || result.Recommendations[0] != droughtAdvice.high {
		t.Errorf("Expected drought advice first, got %v", result.Recommendations)
	}
}

func TestAnalyzer_Deterministic(t *testing.T) {
	a := newTestAnalyzer(t)
	in := validInput()

	first, err := a.Analyze(in)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := a.Analyze(in)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestAnalyzer_ExplicitAsOf(t *testing.T) {
	a := newTestAnalyzer(t)
	in := validInput()
	in.AsOf = date(2024, 8, 1)

	result, err := a.Analyze(in)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.GrowthStage != StageReproductive {
		t.Errorf("Expected Reproductive at 76 days, got %s", result.GrowthStage)
	}
}

func TestAnalyzer_HealthyField(t *testing.T) {
	a := newTestAnalyzer(t)
	in := Input{
		Crop:    CropContext{CropType: CropOther},
		Weather: WeatherSummary{TotalRainfall30d: 40, AvgTemperature: 18, ForecastRain7d: 10},
		Indices: VegetationIndices{NDVI: 0.75, NDMI: 0.3},
	}
	result, err := a.Analyze(in)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.CropHealth != HealthExcellent {
		t.Errorf("Expected Excellent, got %s", result.CropHealth)
	}
	if result.RiskProfile.Overall != RiskLow {
		t.Errorf("Expected overall Low, got %s", result.RiskProfile.Overall)
	}
	if len(result.Recommendations) != 1 || result.Recommendations[0] != MaintainPracticesMessage {
		t.Errorf("Expected single maintain message, got %v", result.Recommendations)
	}
}

func TestAnalyzer_ValidationErrors(t *testing.T) {
	a := newTestAnalyzer(t)
	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"ndvi too high", func(in *Input) { in.Indices.NDVI = 1.5 }, "ndvi"},
		{"ndmi too low", func(in *Input) { in.Indices.NDMI = -1.1 }, "ndmi"},
		{"negative rainfall", func(in *Input) { in.Weather.TotalRainfall30d = -1 }, "total_rainfall_30d"},
		{"negative forecast", func(in *Input) { in.Weather.ForecastRain7d = -0.5 }, "forecast_rain_7d"},
		{"unknown crop", func(in *Input) { in.Crop.CropType = "tobacco" }, "crop_type"},
	}
	for _, tc := range tests {
		in := validInput()
		tc.mutate(&in)
		result, err := a.Analyze(in)
		if result != nil {
			t.Errorf("%s: expected no result on error", tc.name)
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
			continue
		}
		if vErr.Field != tc.field {
			t.Errorf("%s: field = %s, want %s", tc.name, vErr.Field, tc.field)
		}
	}
}

func TestAnalyzer_UnsupportedCrop(t *testing.T) {
	th := DefaultThresholds()
	th.Health.Strict = true
	a, err := NewAnalyzer(th)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	in := validInput()
	in.Crop.CropType = CropOther
	_, err = a.Analyze(in)
	var cropErr *UnsupportedCropError
	if !errors.As(err, &cropErr) {
		t.Errorf("Expected UnsupportedCropError, got %v", err)
	}
}

func TestAnalyzer_TableIsCopied(t *testing.T) {
	th := DefaultThresholds()
	a, err := NewAnalyzer(th, WithClock(func() time.Time { return date(2024, 7, 1) }))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	th.Health.Crops[CropWheat] = HealthThresholds{Excellent: 0.6, Good: 0.4, Moderate: 0.3}

	result, err := a.Analyze(validInput())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.CropHealth != HealthGood {
		t.Errorf("Mutating the source table changed the analyzer: got %s", result.CropHealth)
	}
}

func TestNewAnalyzer_RejectsBadThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.Aggregation = "weighted"
	if _, err := NewAnalyzer(th); err == nil {
		t.Error("Expected error for unknown aggregation policy")
	}
}

func TestAnalysisResult_JSON(t *testing.T) {
	result := AnalysisResult{
		GrowthStage: StageVegetative,
		CropHealth:  HealthGood,
		RiskProfile: RiskProfile{Drought: RiskHigh, Overall: RiskHigh},
		Recommendations: []string{
			"a",
		},
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"growth_stage":"Vegetative","crop_health":"Good","risk_profile":{"drought":"High","flood":"Low","disease":"Low","heat":"Low","overall":"High"},"recommendations":["a"]}`
	if string(data) != want {
		t.Errorf("Unexpected JSON:\n got: %s\nwant: %s", data, want)
	}

	var decoded AnalysisResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, result) {
		t.Errorf("Decoded result differs: %+v", decoded)
	}
}
