package agronomy

import "fmt"

// MaintainPracticesMessage is the sole recommendation for a healthy, low-risk field
const MaintainPracticesMessage = "Crops are healthy and no risks are elevated. Maintain current practices and continue regular monitoring."

// riskAdvice holds one line per elevated level. A hazard without a moderate
// band leaves moderate empty and uses its high advice.
type riskAdvice struct {
	moderate string
	high     string
}

func (r riskAdvice) pick(level RiskLevel) string {
	switch level {
	case RiskHigh:
		return r.high
	case RiskModerate:
		if r.moderate == "" {
			return r.high
		}
		return r.moderate
	default:
		return ""
	}
}

var (
	droughtAdvice = riskAdvice{
		moderate: "Drought watch: rainfall is below normal. Conserve soil moisture with mulching and reduced tillage, and prepare irrigation.",
		high:     "Severe drought risk: low rainfall and low canopy moisture. Irrigate where water is available and monitor for water stress symptoms.",
	}
	floodAdvice = riskAdvice{
		moderate: "Elevated rainfall expected. Check drainage channels and delay fertilizer or pesticide applications until after the rain.",
		high:     "Flood risk: heavy rainfall expected. Clear drainage systems and avoid field operations until the soil dries.",
	}
	diseaseAdvice = riskAdvice{
		moderate: "Conditions are becoming favorable for fungal disease. Scout the field weekly for early symptoms.",
		high:     "High fungal disease pressure (wet and warm). Scout regularly and consider a preventive fungicide application.",
	}
	// heat is assessed as Low or High only
	heatAdvice = riskAdvice{
		high: "Temperature stress detected. Ensure adequate irrigation and monitor the crop for heat or cold damage.",
	}
)

// Recommend turns the assessment into ordered, deduplicated advice:
// drought, flood, disease, heat, crop health, then growth stage notes.
func Recommend(profile RiskProfile, health CropHealth, stage GrowthStage, crop CropType) []string {
	allLow := true
	for _, l := range profile.Dimensions() {
		if l.Elevated() {
			allLow = false
			break
		}
	}
	if allLow && health >= HealthGood {
		return []string{MaintainPracticesMessage}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(droughtAdvice.pick(profile.Drought))
	add(floodAdvice.pick(profile.Flood))
	add(diseaseAdvice.pick(profile.Disease))
	add(heatAdvice.pick(profile.Heat))
	add(healthAdvice(health))
	add(stageAdvice(stage, crop))

	return out
}

func healthAdvice(health CropHealth) string {
	switch health {
	case HealthPoor:
		return "Low vegetation health detected. Inspect the field for nutrient deficiencies (consider soil testing), pest or disease pressure, and water stress."
	case HealthModerate:
		return "Vegetation vigor is moderate. Compare with neighbouring fields and review the nutrient program."
	case HealthGood:
		return "Vegetation vigor is good. Keep current nutrient and irrigation practices while the risks above are managed."
	default:
		return "Vegetation vigor is excellent. Focus attention on the risks above."
	}
}

func stageAdvice(stage GrowthStage, crop CropType) string {
	switch stage {
	case StageGermination:
		return fmt.Sprintf("Germination stage (%s): keep the seedbed moist for even emergence and hold off on top-dressing.", crop)
	case StageVegetative:
		return fmt.Sprintf("Vegetative stage (%s): this is the window for nitrogen top-dressing; schedule irrigation to sustain canopy growth.", crop)
	case StageReproductive:
		return fmt.Sprintf("Reproductive stage (%s): flowering and grain or fruit set are sensitive to stress; prioritize irrigation and avoid late fertilizer.", crop)
	case StageMaturity:
		return fmt.Sprintf("Maturity stage (%s): stop irrigation as the crop dries down and plan harvest timing.", crop)
	default:
		return ""
	}
}
