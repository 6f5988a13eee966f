package models

// Severity is a four-level risk magnitude derived from the moderation overall score
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// BoundingBox is an axis-aligned box in source image pixel coordinates
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is one labeled, scored object found in an image
type Detection struct {
	Label      string      `json:"class"`
	LabelID    int         `json:"class_id"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// CategoryScore pairs a moderation category with its score
type CategoryScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ModerationVerdict is the normalized moderation outcome.
// IsSafe holds exactly when OverallScore <= Threshold.
type ModerationVerdict struct {
	IsSafe          bool               `json:"is_safe"`
	OverallScore    float64            `json:"overall_score"`
	FlaggedCategory *string            `json:"flagged_category"`
	Severity        Severity           `json:"severity"`
	Categories      map[string]float64 `json:"categories"`
	Flags           []CategoryScore    `json:"flags"`
	Threshold       float64            `json:"threshold"`
}

// ImageShape describes the validated image
type ImageShape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// DetectionThresholds reports the effective detection thresholds for one call
type DetectionThresholds struct {
	Confidence float64 `json:"confidence"`
	IoU        float64 `json:"iou"`
}
