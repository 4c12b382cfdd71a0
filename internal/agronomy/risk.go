package agronomy

import "fmt"

// AggregationPolicy folds the four hazard levels into an overall level
type AggregationPolicy func(drought, flood, disease, heat RiskLevel) RiskLevel

const (
	PolicyMax     = "max"
	PolicyAnyHigh = "any_high"
	PolicyCount   = "count"
)

// MaxPolicy takes the worst of the four dimensions
func MaxPolicy(drought, flood, disease, heat RiskLevel) RiskLevel {
	overall := drought
	for _, l := range []RiskLevel{flood, disease, heat} {
		if l > overall {
			overall = l
		}
	}
	return overall
}

// AnyHighPolicy escalates to High on any High dimension and otherwise
// reports Moderate if anything is elevated.
func AnyHighPolicy(drought, flood, disease, heat RiskLevel) RiskLevel {
	overall := RiskLow
	for _, l := range []RiskLevel{drought, flood, disease, heat} {
		if l == RiskHigh {
			return RiskHigh
		}
		if l.Elevated() {
			overall = RiskModerate
		}
	}
	return overall
}

// CountPolicy needs two High dimensions for an overall High; one High or
// two Moderate dimensions give Moderate.
func CountPolicy(drought, flood, disease, heat RiskLevel) RiskLevel {
	var high, moderate int
	for _, l := range []RiskLevel{drought, flood, disease, heat} {
		switch l {
		case RiskHigh:
			high++
		case RiskModerate:
			moderate++
		}
	}
	switch {
	case high >= 2:
		return RiskHigh
	case high >= 1 || moderate >= 2:
		return RiskModerate
	default:
		return RiskLow
	}
}

// PolicyByName resolves a configured policy name; empty means max
func PolicyByName(name string) (AggregationPolicy, error) {
	switch name {
	case "", PolicyMax:
		return MaxPolicy, nil
	case PolicyAnyHigh:
		return AnyHighPolicy, nil
	case PolicyCount:
		return CountPolicy, nil
	default:
		return nil, fmt.Errorf("unknown risk aggregation policy %q", name)
	}
}

// RiskAssessor scores drought, flood, disease and heat stress independently
type RiskAssessor struct {
	th     RiskThresholds
	policy AggregationPolicy
}

// NewRiskAssessor creates an assessor; a nil policy defaults to MaxPolicy
func NewRiskAssessor(th RiskThresholds, policy AggregationPolicy) *RiskAssessor {
	if policy == nil {
		policy = MaxPolicy
	}
	return &RiskAssessor{th: th, policy: policy}
}

// Assess builds the full risk profile
func (a *RiskAssessor) Assess(w WeatherSummary, v VegetationIndices) RiskProfile {
	p := RiskProfile{
		Drought: a.drought(w, v),
		Flood:   a.flood(w, v),
		Disease: a.disease(w),
		Heat:    a.heat(w),
	}
	p.Overall = a.policy(p.Drought, p.Flood, p.Disease, p.Heat)
	return p
}

// drought needs the upstream flag; rainfall and canopy moisture corroborate it
func (a *RiskAssessor) drought(w WeatherSummary, v VegetationIndices) RiskLevel {
	if !w.DroughtRisk {
		return RiskLow
	}
	dryRain := w.TotalRainfall30d < a.th.DroughtRainfallMM
	dryCanopy := v.NDMI < a.th.DroughtNDMI
	if dryRain && dryCanopy {
		return RiskHigh
	}
	return RiskModerate
}

func (a *RiskAssessor) flood(w WeatherSummary, v VegetationIndices) RiskLevel {
	saturated := v.NDMI > a.th.FloodSaturationNDMI
	switch {
	case w.ForecastRain7d > a.th.FloodForecastHighMM:
		return RiskHigh
	case w.FloodRisk && saturated:
		return RiskHigh
	case w.FloodRisk, w.ForecastRain7d > a.th.FloodForecastModerateMM:
		return RiskModerate
	default:
		return RiskLow
	}
}

// disease peaks when wet conditions meet the warm band pathogens favor
func (a *RiskAssessor) disease(w WeatherSummary) RiskLevel {
	t := w.AvgTemperature
	inBand := t >= a.th.DiseaseTempMinC && t <= a.th.DiseaseTempMaxC
	nearBand := t >= a.th.DiseaseTempMinC-a.th.DiseaseTempMarginC &&
		t <= a.th.DiseaseTempMaxC+a.th.DiseaseTempMarginC

	wet := w.TotalRainfall30d > a.th.DiseaseRainfallHighMM
	damp := w.TotalRainfall30d > a.th.DiseaseRainfallModerateMM

	switch {
	case wet && inBand:
		return RiskHigh
	case wet && nearBand, damp && inBand:
		return RiskModerate
	default:
		return RiskLow
	}
}

func (a *RiskAssessor) heat(w WeatherSummary) RiskLevel {
	if w.AvgTemperature > a.th.HeatTempC || w.TemperatureStress {
		return RiskHigh
	}
	return RiskLow
}
