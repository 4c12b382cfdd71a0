package agronomy

import "time"

// stageBound maps a minimum day count to a stage; rows are ascending
type stageBound struct {
	fromDay int
	stage   GrowthStage
}

var stageBounds = []stageBound{
	{0, StageGermination},
	{21, StageVegetative},
	{61, StageReproductive},
	{91, StageMaturity},
}

// GrowthStageAt derives the growth stage on asOf for a crop planted on
// plantingDate. A missing or future planting date yields StageUnknown.
func GrowthStageAt(plantingDate *time.Time, asOf time.Time) GrowthStage {
	if plantingDate == nil {
		return StageUnknown
	}

	days := DaysBetween(*plantingDate, asOf)
	if days < 0 {
		return StageUnknown
	}

	stage := StageUnknown
	for _, b := range stageBounds {
		if days >= b.fromDay {
			stage = b.stage
		}
	}
	return stage
}

// DaysBetween counts whole calendar days from a to b, ignoring time of day
func DaysBetween(a, b time.Time) int {
	da := civilDate(a)
	db := civilDate(b)
	return int(db.Sub(da).Hours() / 24)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
