package analyzer

// ValidateDetectionThresholds checks both values are within [0, 1]
func ValidateDetectionThresholds(t DetectionThresholds) error {
	if err := validateUnit("confidence_threshold", t.Confidence); err != nil {
		return err
	}
	return validateUnit("iou_threshold", t.IoU)
}

// DetectionOverride carries optional per-request detection thresholds.
// A nil field keeps the baseline value.
type DetectionOverride struct {
	Confidence *float64
	IoU        *float64
}

// Validate rejects override values outside [0, 1]
func (o DetectionOverride) Validate() error {
	if o.Confidence != nil {
		if err := validateUnit("confidence_threshold", *o.Confidence); err != nil {
			return err
		}
	}
	if o.IoU != nil {
		if err := validateUnit("iou_threshold", *o.IoU); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the override changes nothing
func (o DetectionOverride) IsEmpty() bool {
	return o.Confidence == nil && o.IoU == nil
}

// Apply returns baseline with any supplied override values substituted
func (o DetectionOverride) Apply(baseline DetectionThresholds) DetectionThresholds {
	effective := baseline
	if o.Confidence != nil {
		effective.Confidence = *o.Confidence
	}
	if o.IoU != nil {
		effective.IoU = *o.IoU
	}
	return effective
}

// ModerationOverride carries an optional per-request flag threshold
type ModerationOverride struct {
	Threshold *float64
}

// Validate rejects a threshold outside [0, 1]
func (o ModerationOverride) Validate() error {
	if o.Threshold != nil {
		return validateUnit("threshold", *o.Threshold)
	}
	return nil
}

// Apply returns the override threshold if present, else baseline
func (o ModerationOverride) Apply(baseline float64) float64 {
	if o.Threshold != nil {
		return *o.Threshold
	}
	return baseline
}

// Float64 is a convenience for building overrides from literals
func Float64(v float64) *float64 {
	return &v
}
