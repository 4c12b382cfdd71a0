package agronomy

import "fmt"

// GrowthStage is the phenological phase derived from days since planting
type GrowthStage int

const (
	StageUnknown GrowthStage = iota
	StageGermination
	StageVegetative
	StageReproductive
	StageMaturity
)

var growthStageNames = map[GrowthStage]string{
	StageUnknown:      "Unknown",
	StageGermination:  "Germination",
	StageVegetative:   "Vegetative",
	StageReproductive: "Reproductive",
	StageMaturity:     "Maturity",
}

func (s GrowthStage) String() string {
	if name, ok := growthStageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("GrowthStage(%d)", int(s))
}

func (s GrowthStage) MarshalText() ([]byte, error) {
	if _, ok := growthStageNames[s]; !ok {
		return nil, fmt.Errorf("invalid growth stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *GrowthStage) UnmarshalText(b []byte) error {
	for stage, name := range growthStageNames {
		if name == string(b) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown growth stage %q", string(b))
}

// CropHealth is a qualitative vegetation rating, ordered Poor < Moderate < Good < Excellent
type CropHealth int

const (
	HealthPoor CropHealth = iota
	HealthModerate
	HealthGood
	HealthExcellent
)

var cropHealthNames = map[CropHealth]string{
	HealthPoor:      "Poor",
	HealthModerate:  "Moderate",
	HealthGood:      "Good",
	HealthExcellent: "Excellent",
}

func (h CropHealth) String() string {
	if name, ok := cropHealthNames[h]; ok {
		return name
	}
	return fmt.Sprintf("CropHealth(%d)", int(h))
}

func (h CropHealth) MarshalText() ([]byte, error) {
	if _, ok := cropHealthNames[h]; !ok {
		return nil, fmt.Errorf("invalid crop health %d", int(h))
	}
	return []byte(h.String()), nil
}

func (h *CropHealth) UnmarshalText(b []byte) error {
	for health, name := range cropHealthNames {
		if name == string(b) {
			*h = health
			return nil
		}
	}
	return fmt.Errorf("unknown crop health %q", string(b))
}

// RiskLevel is totally ordered: Low < Moderate < High
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskModerate
	RiskHigh
)

var riskLevelNames = map[RiskLevel]string{
	RiskLow:      "Low",
	RiskModerate: "Moderate",
	RiskHigh:     "High",
}

func (r RiskLevel) String() string {
	if name, ok := riskLevelNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RiskLevel(%d)", int(r))
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if _, ok := riskLevelNames[r]; !ok {
		return nil, fmt.Errorf("invalid risk level %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	for level, name := range riskLevelNames {
		if name == string(b) {
			*r = level
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", string(b))
}

// Elevated reports whether the level warrants a recommendation
func (r RiskLevel) Elevated() bool {
	return r >= RiskModerate
}
