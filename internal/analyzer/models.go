package analyzer

import "github.com/anime-shed/vision-guard-go/pkg/models"

// Type aliases so callers of this package do not need to import pkg/models for results
type (
	Detection           = models.Detection
	BoundingBox         = models.BoundingBox
	ModerationVerdict   = models.ModerationVerdict
	CategoryScore       = models.CategoryScore
	Severity            = models.Severity
	DetectionThresholds = models.DetectionThresholds
)
