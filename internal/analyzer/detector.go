package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/semaphore"
)

// GuardedDetector shares one long-lived detection engine between concurrent requests.
//
// The baseline thresholds are the only mutable state. Every call, with or without an
// override, runs snapshot, apply, invoke and restore while holding exclusive access,
// so no request ever observes another request's override and the baseline is always
// restored before the lock is released.
type GuardedDetector struct {
	engine   DetectionEngine
	sem      *semaphore.Weighted
	baseline DetectionThresholds

	// configured mirrors baseline outside the critical section, so it never holds an override
	mu         sync.RWMutex
	configured DetectionThresholds
}

// NewGuardedDetector wraps engine with the given baseline thresholds
func NewGuardedDetector(engine DetectionEngine, baseline DetectionThresholds) (*GuardedDetector, error) {
	if engine == nil {
		return nil, errors.New("analyzer: detection engine is required")
	}
	if err := ValidateDetectionThresholds(baseline); err != nil {
		return nil, err
	}
	return &GuardedDetector{
		engine:     engine,
		sem:        semaphore.NewWeighted(1),
		baseline:   baseline,
		configured: baseline,
	}, nil
}

// Detect runs the engine with the effective thresholds and returns normalized detections
// together with the thresholds that were used.
//
// Invalid overrides fail with ErrConfiguration before the engine is touched. Engine
// errors come back as *EngineFailure. Cancelling ctx while waiting for the engine aborts
// the wait; once the engine has been entered the invocation runs to completion.
func (d *GuardedDetector) Detect(ctx context.Context, img image.Image, override DetectionOverride) ([]Detection, DetectionThresholds, error) {
	if err := override.Validate(); err != nil {
		return nil, DetectionThresholds{}, err
	}

	raw, effective, err := d.predict(ctx, img, override)
	if err != nil {
		return nil, effective, err
	}
	return NormalizeDetections(raw), effective, nil
}

// predict is the critical section. Normalization happens outside it.
func (d *GuardedDetector) predict(ctx context.Context, img image.Image, override DetectionOverride) (raw []RawDetection, effective DetectionThresholds, err error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, DetectionThresholds{}, err
	}
	defer d.sem.Release(1)

	snapshot := d.baseline
	defer func() { d.baseline = snapshot }()

	d.baseline = override.Apply(snapshot)
	effective = d.baseline

	raw, err = invokeDetection(context.WithoutCancel(ctx), d.engine, img, effective)
	if err != nil {
		return nil, effective, &EngineFailure{Kind: KindDetection, Err: err}
	}
	return raw, effective, nil
}

func invokeDetection(ctx context.Context, engine DetectionEngine, img image.Image, t DetectionThresholds) (raw []RawDetection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return engine.Predict(ctx, img, t.Confidence, t.IoU)
}

// Baseline returns the current baseline thresholds
func (d *GuardedDetector) Baseline() DetectionThresholds {
	_ = d.sem.Acquire(context.Background(), 1)
	defer d.sem.Release(1)
	return d.baseline
}

// SetBaseline replaces the baseline thresholds. Intended for configuration time.
func (d *GuardedDetector) SetBaseline(t DetectionThresholds) error {
	if err := ValidateDetectionThresholds(t); err != nil {
		return err
	}
	_ = d.sem.Acquire(context.Background(), 1)
	defer d.sem.Release(1)
	d.baseline = t

	d.mu.Lock()
	d.configured = t
	d.mu.Unlock()
	return nil
}

// Effective returns the thresholds a call with override would run under. It does not
// wait for an in-flight inference.
func (d *GuardedDetector) Effective(override DetectionOverride) DetectionThresholds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return override.Apply(d.configured)
}

// Labels returns a copy of the engine's label map
func (d *GuardedDetector) Labels() map[int]string {
	labels := d.engine.AvailableLabels()
	out := make(map[int]string, len(labels))
	for id, name := range labels {
		out[id] = name
	}
	return out
}
