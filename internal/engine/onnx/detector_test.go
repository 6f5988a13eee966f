package onnx

import (
	"math"
	"testing"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
)

func TestAnchorCount(t *testing.T) {
	if got := anchorCount(640); got != 8400 {
		t.Errorf("Expected 8400 anchors for 640, got %d", got)
	}
	if got := anchorCount(320); got != 2100 {
		t.Errorf("Expected 2100 anchors for 320, got %d", got)
	}
}

// predictionTensor builds a channel-major output with the given per-anchor rows
func predictionTensor(classes int, rows [][]float32) []float32 {
	anchors := len(rows)
	out := make([]float32, (4+classes)*anchors)
	for a, row := range rows {
		for ch, v := range row {
			out[ch*anchors+a] = v
		}
	}
	return out
}

func TestDecodeYOLO(t *testing.T) {
	tensor := predictionTensor(2, [][]float32{
		{100, 100, 40, 20, 0.9, 0.1},
		{300, 300, 10, 10, 0.1, 0.2},
		{200, 50, 20, 20, 0.3, 0.6},
	})

	detections, err := decodeYOLO(tensor, 2, 3, 2.0, 0.5, 0.25)
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections above 0.25, got %d", len(detections))
	}

	first := detections[0]
	if first.LabelID != 0 || math.Abs(first.Confidence-0.9) > 1e-6 {
		t.Errorf("Unexpected first detection: %+v", first)
	}
	if first.X1 != 160 || first.X2 != 240 || first.Y1 != 45 || first.Y2 != 55 {
		t.Errorf("Expected corners scaled to source, got %+v", first)
	}
	if detections[1].LabelID != 1 {
		t.Errorf("Expected best class 1 for third anchor, got %d", detections[1].LabelID)
	}
}

func TestDecodeYOLO_BadLength(t *testing.T) {
	if _, err := decodeYOLO(make([]float32, 10), 2, 3, 1, 1, 0.25); err == nil {
		t.Error("Expected error for mismatched output length")
	}
}

func TestNonMaxSuppression(t *testing.T) {
	detections := []analyzer.RawDetection{
		{LabelID: 0, Confidence: 0.6, X1: 1, Y1: 1, X2: 11, Y2: 11},
		{LabelID: 0, Confidence: 0.9, X1: 0, Y1: 0, X2: 10, Y2: 10},
		{LabelID: 1, Confidence: 0.8, X1: 0, Y1: 0, X2: 10, Y2: 10},
		{LabelID: 0, Confidence: 0.7, X1: 50, Y1: 50, X2: 60, Y2: 60},
	}

	kept := nonMaxSuppression(detections, 0.45)
	if len(kept) != 3 {
		t.Fatalf("Expected 3 boxes to survive, got %d: %+v", len(kept), kept)
	}
	if kept[0].Confidence != 0.9 || kept[1].Confidence != 0.8 || kept[2].Confidence != 0.7 {
		t.Errorf("Expected descending confidence, got %+v", kept)
	}

	// A permissive IoU keeps the overlapping box.
	if got := nonMaxSuppression(detections, 0.9); len(got) != 4 {
		t.Errorf("Expected all boxes at IoU 0.9, got %d", len(got))
	}
}

func TestIntersectionOverUnion(t *testing.T) {
	a := analyzer.RawDetection{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := analyzer.RawDetection{X1: 5, Y1: 0, X2: 15, Y2: 10}

	if got := intersectionOverUnion(a, b); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("Expected 1/3, got %v", got)
	}
	if got := intersectionOverUnion(a, analyzer.RawDetection{X1: 20, Y1: 20, X2: 30, Y2: 30}); got != 0 {
		t.Errorf("Expected 0 for disjoint boxes, got %v", got)
	}
}
