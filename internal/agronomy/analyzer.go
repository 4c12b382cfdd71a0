// Package agronomy maps weather aggregates, vegetation indices and crop
// metadata to a growth stage, a crop-health rating, a risk profile and
// ordered recommendations. Every function here is pure; the Analyzer holds
// only immutable configuration and is safe for concurrent use.
package agronomy

import (
	"fmt"
	"time"
)

// Input is everything a single analysis needs
type Input struct {
	Crop    CropContext
	Weather WeatherSummary
	Indices VegetationIndices
	// AsOf is the date the growth stage is computed for; zero means today.
	AsOf time.Time
}

// Analyzer runs the growth, health, risk and recommendation steps in order
type Analyzer struct {
	table    ThresholdTable
	assessor *RiskAssessor
	now      func() time.Time
}

// Option customizes an Analyzer
type Option func(*Analyzer)

// WithClock overrides the clock used when Input.AsOf is zero
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer validates the thresholds and builds an analyzer from them
func NewAnalyzer(th Thresholds, opts ...Option) (*Analyzer, error) {
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	policy, err := PolicyByName(th.Aggregation)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		table:    th.Health.Clone(),
		assessor: NewRiskAssessor(th.Risk, policy),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze validates the input and produces a complete assessment, or an
// error and no result.
func (a *Analyzer) Analyze(in Input) (*AnalysisResult, error) {
	if err := in.Crop.Validate(); err != nil {
		return nil, err
	}
	if err := in.Weather.Validate(); err != nil {
		return nil, err
	}
	if err := in.Indices.Validate(); err != nil {
		return nil, err
	}

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = a.now()
	}

	stage := GrowthStageAt(in.Crop.PlantingDate, asOf)

	health, err := ClassifyHealth(in.Indices.NDVI, in.Crop.CropType, stage, a.table)
	if err != nil {
		return nil, err
	}

	profile := a.assessor.Assess(in.Weather, in.Indices)

	return &AnalysisResult{
		GrowthStage:     stage,
		CropHealth:      health,
		RiskProfile:     profile,
		Recommendations: Recommend(profile, health, stage, in.Crop.CropType),
	}, nil
}
