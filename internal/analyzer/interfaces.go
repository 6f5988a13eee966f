package analyzer

import (
	"context"
	"image"
)

// RawDetection is a detection as produced by an engine, before normalization
type RawDetection struct {
	Label      string
	LabelID    int
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

// LabelScore is one (label, score) pair produced by a classification engine
type LabelScore struct {
	Label string
	Score float64
}

// DetectionEngine is an object detector. It is treated as a black box: given an image and
// two thresholds it returns labeled, scored, axis-aligned boxes.
type DetectionEngine interface {
	Predict(ctx context.Context, img image.Image, confidenceThreshold, iouThreshold float64) ([]RawDetection, error)
	AvailableLabels() map[int]string
}

// ClassificationEngine scores an image against a fixed label vocabulary
type ClassificationEngine interface {
	Classify(ctx context.Context, img image.Image) ([]LabelScore, error)
}
