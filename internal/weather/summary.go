// Package weather reduces daily weather series into the aggregates the
// analysis engine consumes.
package weather

import (
	"errors"
	"fmt"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
)

// DailySeries is one value per day; nil entries are days with no reading
type DailySeries struct {
	Dates         []string   `json:"dates,omitempty"`
	Precipitation []*float64 `json:"precipitation"`
	TempMean      []*float64 `json:"temp_mean,omitempty"`
}

// Trend describes how recent rainfall compares to the week before
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
	TrendUnknown    Trend = "unknown"
)

// Flags are the cutoffs used to pre-flag drought, flood and temperature stress
type Flags struct {
	DroughtRainfallMM float64
	FloodForecastMM   float64
	StressHighC       float64
	StressLowC        float64
}

// DefaultFlags returns the stock flagging cutoffs
func DefaultFlags() Flags {
	return Flags{
		DroughtRainfallMM: 20,
		FloodForecastMM:   100,
		StressHighC:       35,
		StressLowC:        10,
	}
}

// Summary is the engine input plus the rainfall trend used in reports
type Summary struct {
	Weather       agronomy.WeatherSummary
	RainfallTrend Trend
}

var ErrNoTemperature = errors.New("history has no temperature readings")

// Summarize sums rainfall over history and forecast, averages temperature
// over history and raises the upstream risk flags.
func Summarize(history, forecast DailySeries, f Flags) (Summary, error) {
	temps := present(history.TempMean)
	if len(temps) == 0 {
		return Summary{}, ErrNoTemperature
	}

	var w agronomy.WeatherSummary

	rain := present(history.Precipitation)
	if len(rain) > 0 {
		w.TotalRainfall30d = sum(rain)
		w.DroughtRisk = w.TotalRainfall30d < f.DroughtRainfallMM
	}

	w.AvgTemperature = sum(temps) / float64(len(temps))
	w.TemperatureStress = w.AvgTemperature > f.StressHighC || w.AvgTemperature < f.StressLowC

	if fc := present(forecast.Precipitation); len(fc) > 0 {
		w.ForecastRain7d = sum(fc)
		w.FloodRisk = w.ForecastRain7d > f.FloodForecastMM
	}

	if err := w.Validate(); err != nil {
		return Summary{}, fmt.Errorf("summarized weather is invalid: %w", err)
	}

	return Summary{Weather: w, RainfallTrend: rainfallTrend(history.Precipitation)}, nil
}

// rainfallTrend compares the last seven days with the seven before them
func rainfallTrend(precip []*float64) Trend {
	if len(precip) < 14 {
		return TrendUnknown
	}
	n := len(precip)
	recent := sum(present(precip[n-7:]))
	previous := sum(present(precip[n-14 : n-7]))

	switch {
	case recent > previous*1.5:
		return TrendIncreasing
	case recent < previous*0.5:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func present(values []*float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
