package analyzer

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks threshold or policy values that are out of range
var ErrConfiguration = errors.New("invalid configuration")

// EngineKind identifies which engine a failure came from
type EngineKind string

const (
	KindDetection  EngineKind = "detection"
	KindModeration EngineKind = "moderation"
)

// EngineFailure wraps an error raised by an engine during invocation. It is only ever
// returned after the baseline thresholds have been restored.
type EngineFailure struct {
	Kind EngineKind
	Err  error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("%s engine failure: %v", e.Kind, e.Err)
}

func (e *EngineFailure) Unwrap() error {
	return e.Err
}

func configurationError(field string, value float64) error {
	return fmt.Errorf("%w: %s must be within [0, 1] (got %v)", ErrConfiguration, field, value)
}

func validateUnit(field string, value float64) error {
	// Written this way so NaN fails too.
	if !(value >= 0 && value <= 1) {
		return configurationError(field, value)
	}
	return nil
}
