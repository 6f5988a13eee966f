package analyzer

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// echoDetectionEngine reports the thresholds it was invoked with through its output:
// Confidence carries the confidence threshold and X1 carries the IoU threshold.
// It also records whether two invocations ever overlapped.
type echoDetectionEngine struct {
	calls      atomic.Int64
	inFlight   atomic.Int64
	overlapped atomic.Bool
	delay      time.Duration
}

func (e *echoDetectionEngine) Predict(ctx context.Context, img image.Image, conf, iou float64) ([]RawDetection, error) {
	e.calls.Add(1)
	if e.inFlight.Add(1) > 1 {
		e.overlapped.Store(true)
	}
	defer e.inFlight.Add(-1)

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return []RawDetection{{Label: "probe", LabelID: 0, Confidence: conf, X1: iou, Y1: 0, X2: iou, Y2: 1}}, nil
}

func (e *echoDetectionEngine) AvailableLabels() map[int]string {
	return map[int]string{0: "person", 1: "bicycle"}
}

// blockingDetectionEngine parks inside Predict until release is closed
type blockingDetectionEngine struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  atomic.Value
	err     error
}

func newBlockingDetectionEngine() *blockingDetectionEngine {
	return &blockingDetectionEngine{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (e *blockingDetectionEngine) Predict(ctx context.Context, img image.Image, conf, iou float64) ([]RawDetection, error) {
	e.once.Do(func() { close(e.entered) })
	<-e.release
	if err := ctx.Err(); err != nil {
		e.ctxErr.Store(err)
	}
	if e.err != nil {
		return nil, e.err
	}
	return []RawDetection{{Label: "probe", Confidence: conf, X1: iou, X2: iou, Y2: 1}}, nil
}

func (e *blockingDetectionEngine) AvailableLabels() map[int]string {
	return map[int]string{}
}

// failingDetectionEngine always fails, optionally by panicking
type failingDetectionEngine struct {
	err   error
	panic bool
}

func (e *failingDetectionEngine) Predict(ctx context.Context, img image.Image, conf, iou float64) ([]RawDetection, error) {
	if e.panic {
		panic("tensor shape mismatch")
	}
	return nil, e.err
}

func (e *failingDetectionEngine) AvailableLabels() map[int]string {
	return nil
}

// staticClassificationEngine returns fixed scores
type staticClassificationEngine struct {
	scores []LabelScore
	err    error
	delay  time.Duration
	calls  atomic.Int64
}

func (e *staticClassificationEngine) Classify(ctx context.Context, img image.Image) ([]LabelScore, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([]LabelScore, len(e.scores))
	copy(out, e.scores)
	return out, nil
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}
