package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/semaphore"
)

// GuardedModerator shares one long-lived classification engine between concurrent
// requests. It has its own exclusion domain, independent of GuardedDetector.
type GuardedModerator struct {
	engine    ClassificationEngine
	policy    ModerationPolicy
	sem       *semaphore.Weighted
	threshold float64

	mu         sync.RWMutex
	configured float64
}

// NewGuardedModerator wraps engine with a baseline flag threshold and a policy
func NewGuardedModerator(engine ClassificationEngine, threshold float64, policy ModerationPolicy) (*GuardedModerator, error) {
	if engine == nil {
		return nil, errors.New("analyzer: classification engine is required")
	}
	if err := validateUnit("moderation_threshold", threshold); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &GuardedModerator{
		engine:     engine,
		policy:     policy,
		sem:        semaphore.NewWeighted(1),
		threshold:  threshold,
		configured: threshold,
	}, nil
}

// Moderate classifies img and turns the scores into a verdict using the effective
// threshold. Error semantics match GuardedDetector.Detect.
func (m *GuardedModerator) Moderate(ctx context.Context, img image.Image, override ModerationOverride) (*ModerationVerdict, error) {
	if err := override.Validate(); err != nil {
		return nil, err
	}

	scores, effective, err := m.classify(ctx, img, override)
	if err != nil {
		return nil, err
	}

	verdict := ClassifyScores(scores, effective, m.policy)
	return &verdict, nil
}

func (m *GuardedModerator) classify(ctx context.Context, img image.Image, override ModerationOverride) (scores []LabelScore, effective float64, err error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, err
	}
	defer m.sem.Release(1)

	snapshot := m.threshold
	defer func() { m.threshold = snapshot }()

	m.threshold = override.Apply(snapshot)
	effective = m.threshold

	scores, err = invokeClassification(context.WithoutCancel(ctx), m.engine, img)
	if err != nil {
		return nil, effective, &EngineFailure{Kind: KindModeration, Err: err}
	}
	return scores, effective, nil
}

func invokeClassification(ctx context.Context, engine ClassificationEngine, img image.Image) (scores []LabelScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return engine.Classify(ctx, img)
}

// Threshold returns the current baseline flag threshold
func (m *GuardedModerator) Threshold() float64 {
	_ = m.sem.Acquire(context.Background(), 1)
	defer m.sem.Release(1)
	return m.threshold
}

// SetThreshold replaces the baseline flag threshold. Intended for configuration time.
func (m *GuardedModerator) SetThreshold(threshold float64) error {
	if err := validateUnit("moderation_threshold", threshold); err != nil {
		return err
	}
	_ = m.sem.Acquire(context.Background(), 1)
	defer m.sem.Release(1)
	m.threshold = threshold

	m.mu.Lock()
	m.configured = threshold
	m.mu.Unlock()
	return nil
}

// EffectiveThreshold returns the threshold a call with override would run under
// without waiting for an in-flight inference
func (m *GuardedModerator) EffectiveThreshold(override ModerationOverride) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return override.Apply(m.configured)
}

// Policy returns the classification policy in use
func (m *GuardedModerator) Policy() ModerationPolicy {
	return m.policy
}
