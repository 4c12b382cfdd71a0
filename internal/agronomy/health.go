package agronomy

// ClassifyHealth rates crop health from NDVI using the crop's threshold row.
// The growth stage is accepted for future stage-aware tables but does not
// change the bounds today.
func ClassifyHealth(ndvi float64, crop CropType, stage GrowthStage, table ThresholdTable) (CropHealth, error) {
	if err := checkIndex("ndvi", ndvi); err != nil {
		return HealthPoor, err
	}

	th, err := table.Lookup(crop)
	if err != nil {
		return HealthPoor, err
	}

	switch {
	case ndvi >= th.Excellent:
		return HealthExcellent, nil
	case ndvi >= th.Good:
		return HealthGood, nil
	case ndvi >= th.Moderate:
		return HealthModerate, nil
	default:
		return HealthPoor, nil
	}
}
