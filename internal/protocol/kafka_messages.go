package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/weather"
)

// Report statuses
const (
	StatusReady = "ready"
	StatusError = "error"
)

// Error kinds carried on error reports
const (
	ErrorKindValidation      = "validation"
	ErrorKindUnsupportedCrop = "unsupported_crop"
	ErrorKindInternal        = "internal"
)

// ErrorKindFor classifies err for error reports and HTTP status mapping
func ErrorKindFor(err error) string {
	var verr *agronomy.ValidationError
	var cerr *agronomy.UnsupportedCropError
	switch {
	case errors.As(err, &verr):
		return ErrorKindValidation
	case errors.As(err, &cerr):
		return ErrorKindUnsupportedCrop
	default:
		return ErrorKindInternal
	}
}

// MetricsEcho repeats the inputs the assessment was computed from
type MetricsEcho struct {
	NDVI             float64       `json:"ndvi"`
	NDMI             float64       `json:"ndmi"`
	TotalRainfall30d float64       `json:"total_rainfall_30d"`
	ForecastRain7d   float64       `json:"forecast_rain_7d"`
	AvgTemperature   float64       `json:"avg_temperature"`
	RainfallTrend    weather.Trend `json:"rainfall_trend"`
}

// AnalysisReport is the message published for every processed request
type AnalysisReport struct {
	RequestID   string                   `json:"request_id"`
	FieldID     string                   `json:"field_id"`
	FarmName    string                   `json:"farm_name,omitempty"`
	Email       string                   `json:"email,omitempty"`
	CropType    string                   `json:"crop_type"`
	Status      string                   `json:"status"`
	Result      *agronomy.AnalysisResult `json:"result,omitempty"`
	ErrorKind   string                   `json:"error_kind,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Metrics     *MetricsEcho             `json:"metrics,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// NewReadyReport wraps a successful assessment
func NewReadyReport(req *AnalysisRequest, in agronomy.Input, trend weather.Trend, result *agronomy.AnalysisResult) *AnalysisReport {
	r := baseReport(req, StatusReady)
	r.CropType = string(in.Crop.CropType)
	r.Result = result
	r.Metrics = &MetricsEcho{
		NDVI:             in.Indices.NDVI,
		NDMI:             in.Indices.NDMI,
		TotalRainfall30d: in.Weather.TotalRainfall30d,
		ForecastRain7d:   in.Weather.ForecastRain7d,
		AvgTemperature:   in.Weather.AvgTemperature,
		RainfallTrend:    trend,
	}
	return r
}

// NewErrorReport records why a request produced no assessment
func NewErrorReport(req *AnalysisRequest, kind string, err error) *AnalysisReport {
	r := baseReport(req, StatusError)
	r.ErrorKind = kind
	r.Error = err.Error()
	return r
}

func baseReport(req *AnalysisRequest, status string) *AnalysisReport {
	return &AnalysisReport{
		RequestID:   req.RequestID,
		FieldID:     req.FieldID,
		FarmName:    req.FarmName,
		Email:       req.Email,
		CropType:    req.CropType,
		Status:      status,
		GeneratedAt: time.Now().UTC(),
	}
}

// EncodeAnalysisReport encodes a report to JSON
func EncodeAnalysisReport(r *AnalysisReport) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeAnalysisReport decodes JSON to an AnalysisReport
func DecodeAnalysisReport(data []byte) (*AnalysisReport, error) {
	var r AnalysisReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
