package agronomy

import "fmt"

// ValidationError reports an input that violates a range or shape invariant.
// The whole analysis is rejected; no partial result is produced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnsupportedCropError is returned when no health threshold row applies to a crop
type UnsupportedCropError struct {
	Crop CropType
}

func (e *UnsupportedCropError) Error() string {
	return fmt.Sprintf("no health thresholds configured for crop %q", e.Crop)
}
