package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/weather"
)

// DateLayout is the calendar date format used for planting and as-of dates
const DateLayout = "2006-01-02"

// WeatherData is the pre-aggregated weather summary. Pointer fields let
// missing values be told apart from zeros.
type WeatherData struct {
	TotalRainfall30d  *float64 `json:"total_rainfall_30d"`
	AvgTemperature    *float64 `json:"avg_temperature"`
	ForecastRain7d    *float64 `json:"forecast_rain_7d"`
	DroughtRisk       *bool    `json:"drought_risk"`
	FloodRisk         *bool    `json:"flood_risk"`
	TemperatureStress *bool    `json:"temperature_stress"`
}

// WeatherSeries carries raw daily history and forecast instead of a summary
type WeatherSeries struct {
	History  weather.DailySeries `json:"history"`
	Forecast weather.DailySeries `json:"forecast"`
}

// IndexData holds field-mean vegetation indices
type IndexData struct {
	NDVI *float64 `json:"ndvi"`
	NDMI *float64 `json:"ndmi"`
}

// AnalysisRequest asks for one field to be assessed
type AnalysisRequest struct {
	RequestID     string         `json:"request_id"`
	FieldID       string         `json:"field_id"`
	FarmName      string         `json:"farm_name,omitempty"`
	Email         string         `json:"email,omitempty"`
	CropType      string         `json:"crop_type"`
	PlantingDate  string         `json:"planting_date,omitempty"`
	Weather       *WeatherData   `json:"weather,omitempty"`
	WeatherSeries *WeatherSeries `json:"weather_series,omitempty"`
	Indices       IndexData      `json:"indices"`
	AsOf          string         `json:"as_of,omitempty"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// DecodeAnalysisRequest parses a request and checks its envelope. Field
// values are checked later by ToInput.
func DecodeAnalysisRequest(data []byte) (*AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EncodeAnalysisRequest encodes a request to JSON
func EncodeAnalysisRequest(req *AnalysisRequest) ([]byte, error) {
	return json.Marshal(req)
}

// NewAnalysisRequest creates a request with a fresh id
func NewAnalysisRequest(fieldID, crop string) *AnalysisRequest {
	return &AnalysisRequest{
		RequestID:   uuid.NewString(),
		FieldID:     fieldID,
		CropType:    crop,
		SubmittedAt: time.Now().UTC(),
	}
}

// requestNamespace seeds ids derived from request payloads
var requestNamespace = uuid.MustParse("3d5c1f8a-9b2e-4c47-a6d0-7e4f2b91c853")

// EnsureID assigns a request id when the producer did not set one. The id is
// derived from payload so every delivery of the same message gets the same
// id; with no payload a random id is used.
func (r *AnalysisRequest) EnsureID(payload []byte) string {
	if r.RequestID != "" {
		return r.RequestID
	}
	if len(payload) == 0 {
		r.RequestID = uuid.NewString()
	} else {
		r.RequestID = uuid.NewSHA1(requestNamespace, payload).String()
	}
	return r.RequestID
}

func validateRequest(req *AnalysisRequest) error {
	if req.RequestID != "" {
		if _, err := uuid.Parse(req.RequestID); err != nil {
			return &agronomy.ValidationError{Field: "request_id", Reason: "must be a UUID"}
		}
	}
	if strings.TrimSpace(req.FieldID) == "" {
		return &agronomy.ValidationError{Field: "field_id", Reason: "is required"}
	}
	if strings.ContainsAny(req.FieldID, "\r\n") {
		return &agronomy.ValidationError{Field: "field_id", Reason: "must not contain line breaks"}
	}
	if req.Weather == nil && req.WeatherSeries == nil {
		return &agronomy.ValidationError{Field: "weather", Reason: "either weather or weather_series is required"}
	}
	return nil
}

// ToInput converts the request into engine value objects. Raw series are
// summarized first; the returned trend is TrendUnknown for pre-aggregated
// weather.
func (r *AnalysisRequest) ToInput() (agronomy.Input, weather.Trend, error) {
	var in agronomy.Input

	planting, err := parseDate("planting_date", r.PlantingDate)
	if err != nil {
		return in, weather.TrendUnknown, err
	}
	crop, err := agronomy.NewCropContext(r.CropType, planting)
	if err != nil {
		return in, weather.TrendUnknown, err
	}
	in.Crop = crop

	asOf, err := parseDate("as_of", r.AsOf)
	if err != nil {
		return in, weather.TrendUnknown, err
	}
	if asOf != nil {
		in.AsOf = *asOf
	}

	trend := weather.TrendUnknown
	switch {
	case r.Weather != nil:
		w, err := r.Weather.toSummary()
		if err != nil {
			return in, trend, err
		}
		in.Weather = w
	default:
		s, err := weather.Summarize(r.WeatherSeries.History, r.WeatherSeries.Forecast, weather.DefaultFlags())
		if err != nil {
			return in, trend, &agronomy.ValidationError{Field: "weather_series", Reason: err.Error()}
		}
		in.Weather = s.Weather
		trend = s.RainfallTrend
	}

	if r.Indices.NDVI == nil {
		return in, trend, &agronomy.ValidationError{Field: "ndvi", Reason: "is required"}
	}
	if r.Indices.NDMI == nil {
		return in, trend, &agronomy.ValidationError{Field: "ndmi", Reason: "is required"}
	}
	v, err := agronomy.NewVegetationIndices(*r.Indices.NDVI, *r.Indices.NDMI)
	if err != nil {
		return in, trend, err
	}
	in.Indices = v

	return in, trend, nil
}

func (w *WeatherData) toSummary() (agronomy.WeatherSummary, error) {
	nums := []struct {
		name string
		v    *float64
	}{
		{"total_rainfall_30d", w.TotalRainfall30d},
		{"avg_temperature", w.AvgTemperature},
		{"forecast_rain_7d", w.ForecastRain7d},
	}
	for _, n := range nums {
		if n.v == nil {
			return agronomy.WeatherSummary{}, &agronomy.ValidationError{Field: n.name, Reason: "is required"}
		}
	}
	flags := []struct {
		name string
		v    *bool
	}{
		{"drought_risk", w.DroughtRisk},
		{"flood_risk", w.FloodRisk},
		{"temperature_stress", w.TemperatureStress},
	}
	for _, f := range flags {
		if f.v == nil {
			return agronomy.WeatherSummary{}, &agronomy.ValidationError{Field: f.name, Reason: "is required"}
		}
	}

	return agronomy.NewWeatherSummary(
		*w.TotalRainfall30d, *w.AvgTemperature, *w.ForecastRain7d,
		*w.DroughtRisk, *w.FloodRisk, *w.TemperatureStress,
	)
}

func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, &agronomy.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return &t, nil
}

// SummaryFrom builds wire weather data from an engine summary
func SummaryFrom(w agronomy.WeatherSummary) *WeatherData {
	return &WeatherData{
		TotalRainfall30d:  &w.TotalRainfall30d,
		AvgTemperature:    &w.AvgTemperature,
		ForecastRain7d:    &w.ForecastRain7d,
		DroughtRisk:       &w.DroughtRisk,
		FloodRisk:         &w.FloodRisk,
		TemperatureStress: &w.TemperatureStress,
	}
}

// PeekRequest decodes whatever identifying fields data carries without
// validating them, so a rejected request can still be answered. A request id
// that is not a UUID is cleared. It returns nil when data is not JSON.
func PeekRequest(data []byte) *AnalysisRequest {
	var req AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil
	}
	if _, err := uuid.Parse(req.RequestID); err != nil {
		req.RequestID = ""
	}
	return &req
}
