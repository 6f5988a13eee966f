package analyzer

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/anime-shed/vision-guard-go/pkg/models"
	"gopkg.in/yaml.v3"
)

// SeverityCutoffs are the exclusive lower bounds of each severity tier
type SeverityCutoffs struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

// ModerationPolicy decides which classifier labels count as unsafe and how the overall
// score maps onto severity tiers.
type ModerationPolicy struct {
	UnsafeLabels []string        `yaml:"unsafe_labels"`
	Severity     SeverityCutoffs `yaml:"severity"`
}

// DefaultUnsafeLabels is the closed set used when no policy is configured
var DefaultUnsafeLabels = []string{"nsfw", "inappropriate", "violence", "gore", "explicit"}

// DefaultPolicy returns the default moderation policy
func DefaultPolicy() ModerationPolicy {
	labels := make([]string, len(DefaultUnsafeLabels))
	copy(labels, DefaultUnsafeLabels)
	return ModerationPolicy{
		UnsafeLabels: labels,
		Severity: SeverityCutoffs{
			High:   0.9,
			Medium: 0.7,
			Low:    0.5,
		},
	}
}

// StrictPolicy flags at lower scores than the default
func StrictPolicy() ModerationPolicy {
	return DefaultPolicy().WithSeverityCutoffs(0.8, 0.5, 0.3)
}

// WithUnsafeLabels returns a copy of the policy with a different unsafe label set
func (p ModerationPolicy) WithUnsafeLabels(labels ...string) ModerationPolicy {
	p.UnsafeLabels = append([]string(nil), labels...)
	return p
}

// WithSeverityCutoffs returns a copy of the policy with different severity cutoffs
func (p ModerationPolicy) WithSeverityCutoffs(high, medium, low float64) ModerationPolicy {
	p.Severity = SeverityCutoffs{High: high, Medium: medium, Low: low}
	return p
}

// Validate checks the label set is non-empty and cutoffs are ordered within [0, 1]
func (p ModerationPolicy) Validate() error {
	if len(p.UnsafeLabels) == 0 {
		return fmt.Errorf("%w: unsafe label set must not be empty", ErrConfiguration)
	}
	for _, label := range p.UnsafeLabels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%w: unsafe labels must not be blank", ErrConfiguration)
		}
	}
	cutoffs := []struct {
		name  string
		value float64
	}{
		{"severity.high", p.Severity.High},
		{"severity.medium", p.Severity.Medium},
		{"severity.low", p.Severity.Low},
	}
	for _, c := range cutoffs {
		if err := validateUnit(c.name, c.value); err != nil {
			return err
		}
	}
	if !(p.Severity.High >= p.Severity.Medium && p.Severity.Medium >= p.Severity.Low) {
		return fmt.Errorf("%w: severity cutoffs must satisfy high >= medium >= low (got %v/%v/%v)",
			ErrConfiguration, p.Severity.High, p.Severity.Medium, p.Severity.Low)
	}
	return nil
}

// IsUnsafe reports whether label belongs to the unsafe set, ignoring case
func (p ModerationPolicy) IsUnsafe(label string) bool {
	for _, unsafe := range p.UnsafeLabels {
		if strings.EqualFold(unsafe, label) {
			return true
		}
	}
	return false
}

// Fingerprint identifies the policy by content: the unsafe labels (case-folded, sorted)
// and the severity cutoffs. Equal policies share a fingerprint regardless of label order.
func (p ModerationPolicy) Fingerprint() string {
	labels := make([]string, len(p.UnsafeLabels))
	for i, label := range p.UnsafeLabels {
		labels[i] = strings.ToLower(strings.TrimSpace(label))
	}
	sort.Strings(labels)

	cutoffs := []string{
		strconv.FormatFloat(p.Severity.High, 'g', -1, 64),
		strconv.FormatFloat(p.Severity.Medium, 'g', -1, 64),
		strconv.FormatFloat(p.Severity.Low, 'g', -1, 64),
	}
	return strings.Join(labels, ",") + "|" + strings.Join(cutoffs, "/")
}

// SeverityOf maps an overall score to its tier
func (p ModerationPolicy) SeverityOf(score float64) models.Severity {
	switch {
	case score > p.Severity.High:
		return models.SeverityHigh
	case score > p.Severity.Medium:
		return models.SeverityMedium
	case score > p.Severity.Low:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}

// LoadPolicyFile reads a YAML policy. Fields left out of the file keep the values of base.
func LoadPolicyFile(path string, base ModerationPolicy) (ModerationPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModerationPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data, base)
}

// ParsePolicy decodes a YAML policy document over base
func ParsePolicy(data []byte, base ModerationPolicy) (ModerationPolicy, error) {
	policy := base.WithUnsafeLabels(base.UnsafeLabels...)
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return ModerationPolicy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return ModerationPolicy{}, err
	}
	return policy, nil
}

// PolicyPreset returns a named built-in policy ("default" or "strict")
func PolicyPreset(name string) (ModerationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultPolicy(), nil
	case "strict":
		return StrictPolicy(), nil
	default:
		return ModerationPolicy{}, fmt.Errorf("%w: unknown policy preset %q", ErrConfiguration, name)
	}
}
