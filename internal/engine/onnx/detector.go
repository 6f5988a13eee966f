package onnx

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	ort "github.com/yalue/onnxruntime_go"
)

// DetectorConfig configures a YOLOv8-style detector
type DetectorConfig struct {
	ModelPath  string
	LabelsFile string
	InputSize  int
}

// Detector runs a YOLOv8 export with output layout [1, 4+classes, anchors]
type Detector struct {
	session *Session
	size    int
	anchors int
	labels  []string
}

// NewDetector loads the model and its labels
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.InputSize <= 0 || cfg.InputSize%32 != 0 {
		return nil, fmt.Errorf("detector input size must be a positive multiple of 32, got %d", cfg.InputSize)
	}

	labels, err := labelsOrDefault(cfg.LabelsFile, COCOLabels)
	if err != nil {
		return nil, err
	}

	anchors := anchorCount(cfg.InputSize)
	session, err := NewSession(SessionSpec{
		ModelPath:   cfg.ModelPath,
		InputName:   "images",
		OutputName:  "output0",
		InputShape:  ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)),
		OutputShape: ort.NewShape(1, int64(4+len(labels)), int64(anchors)),
	})
	if err != nil {
		return nil, err
	}

	return &Detector{
		session: session,
		size:    cfg.InputSize,
		anchors: anchors,
		labels:  labels,
	}, nil
}

// Predict implements analyzer.DetectionEngine
func (d *Detector) Predict(ctx context.Context, img image.Image, conf, iou float64) ([]analyzer.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output, err := d.session.Run(ToCHW(img, d.size))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	scaleX := float64(bounds.Dx()) / float64(d.size)
	scaleY := float64(bounds.Dy()) / float64(d.size)

	candidates, err := decodeYOLO(output, len(d.labels), d.anchors, scaleX, scaleY, conf)
	if err != nil {
		return nil, err
	}

	kept := nonMaxSuppression(candidates, iou)
	for i := range kept {
		kept[i].Label = d.labels[kept[i].LabelID]
	}
	return kept, nil
}

// AvailableLabels implements analyzer.DetectionEngine
func (d *Detector) AvailableLabels() map[int]string {
	labels := make(map[int]string, len(d.labels))
	for i, name := range d.labels {
		labels[i] = name
	}
	return labels
}

// Close releases the underlying session
func (d *Detector) Close() error {
	d.session.Destroy()
	return nil
}

// anchorCount is the number of prediction cells over the 8, 16 and 32 strides
func anchorCount(size int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		total += cells * cells
	}
	return total
}

// decodeYOLO reads the channel-major prediction tensor. For every anchor the best
// class score is compared against conf; survivors are converted from centre form to
// corners in source image coordinates.
func decodeYOLO(output []float32, classes, anchors int, scaleX, scaleY, conf float64) ([]analyzer.RawDetection, error) {
	if expected := (4 + classes) * anchors; len(output) != expected {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(output), expected)
	}

	detections := make([]analyzer.RawDetection, 0, 64)
	for a := 0; a < anchors; a++ {
		bestClass := -1
		bestScore := float32(0)
		for c := 0; c < classes; c++ {
			score := output[(4+c)*anchors+a]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || float64(bestScore) < conf {
			continue
		}

		cx := float64(output[a])
		cy := float64(output[anchors+a])
		w := float64(output[2*anchors+a])
		h := float64(output[3*anchors+a])

		detections = append(detections, analyzer.RawDetection{
			LabelID:    bestClass,
			Confidence: float64(bestScore),
			X1:         (cx - w/2) * scaleX,
			Y1:         (cy - h/2) * scaleY,
			X2:         (cx + w/2) * scaleX,
			Y2:         (cy + h/2) * scaleY,
		})
	}
	return detections, nil
}

// nonMaxSuppression keeps the highest scoring box among same-class boxes that overlap
// by more than iou. The result is ordered by descending confidence.
func nonMaxSuppression(detections []analyzer.RawDetection, iou float64) []analyzer.RawDetection {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	kept := make([]analyzer.RawDetection, 0, len(detections))
	suppressed := make([]bool, len(detections))

	for i := range detections {
		if suppressed[i] {
			continue
		}
		kept = append(kept, detections[i])
		for j := i + 1; j < len(detections); j++ {
			if suppressed[j] || detections[j].LabelID != detections[i].LabelID {
				continue
			}
			if intersectionOverUnion(detections[i], detections[j]) > iou {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func intersectionOverUnion(a, b analyzer.RawDetection) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	inter := max(0, ix2-ix1) * max(0, iy2-iy1)
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
