package analyzer

import (
	"fmt"
	"math"
)

const (
	confidencePlaces = 4
	coordinatePlaces = 2
	scorePlaces      = 4
)

// Round rounds v to the given number of decimal places, half away from zero.
// Applying it twice gives the same result as applying it once.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// NormalizeDetections rounds confidences to 4 places and box coordinates to 2 places.
// Box ordering from the engine is trusted and coordinates are not clamped to the image.
func NormalizeDetections(raw []RawDetection) []Detection {
	detections := make([]Detection, 0, len(raw))
	for _, r := range raw {
		detections = append(detections, Detection{
			Label:      r.Label,
			LabelID:    r.LabelID,
			Confidence: Round(r.Confidence, confidencePlaces),
			BBox: BoundingBox{
				X1: Round(r.X1, coordinatePlaces),
				Y1: Round(r.Y1, coordinatePlaces),
				X2: Round(r.X2, coordinatePlaces),
				Y2: Round(r.Y2, coordinatePlaces),
			},
		})
	}
	return detections
}

// ClassifyScores turns raw classifier scores into a verdict.
//
// Only labels in the policy's unsafe set contribute to the overall score and flags.
// Severity depends on the overall score alone; safety and flags depend on threshold.
func ClassifyScores(scores []LabelScore, threshold float64, policy ModerationPolicy) ModerationVerdict {
	categories := make(map[string]float64, len(scores))
	flags := make([]CategoryScore, 0)

	overall := 0.0
	topLabel := ""

	for _, s := range scores {
		categories[s.Label] = Round(s.Score, scorePlaces)

		if !policy.IsUnsafe(s.Label) {
			continue
		}
		if s.Score > overall {
			overall = s.Score
			topLabel = s.Label
		}
		if s.Score > threshold {
			flags = append(flags, CategoryScore{
				Category:   s.Label,
				Confidence: Round(s.Score, scorePlaces),
			})
		}
	}

	verdict := ModerationVerdict{
		IsSafe:       overall <= threshold,
		OverallScore: Round(overall, scorePlaces),
		Severity:     policy.SeverityOf(overall),
		Categories:   categories,
		Flags:        flags,
		Threshold:    threshold,
	}
	if !verdict.IsSafe {
		label := topLabel
		verdict.FlaggedCategory = &label
	}
	return verdict
}

// VerdictMessage renders a one-line human readable summary
func VerdictMessage(v ModerationVerdict) string {
	if v.IsSafe || v.FlaggedCategory == nil {
		return "Image passed content moderation checks."
	}
	return fmt.Sprintf("Image flagged as potentially inappropriate. Primary concern: %s (confidence: %.2f%%)",
		*v.FlaggedCategory, v.OverallScore*100)
}
