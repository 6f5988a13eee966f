package analyzer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	for _, label := range []string{"nsfw", "inappropriate", "violence", "gore", "explicit"} {
		if !policy.IsUnsafe(label) {
			t.Errorf("Expected %s to be unsafe", label)
		}
	}
	if policy.IsUnsafe("neutral") {
		t.Error("Expected neutral to be safe")
	}
	if policy.Severity.High != 0.9 || policy.Severity.Medium != 0.7 || policy.Severity.Low != 0.5 {
		t.Errorf("Unexpected default cutoffs: %+v", policy.Severity)
	}
	if err := policy.Validate(); err != nil {
		t.Errorf("Expected default policy to be valid, got %v", err)
	}
}

func TestDefaultPolicy_IndependentCopies(t *testing.T) {
	a := DefaultPolicy()
	a.UnsafeLabels[0] = "changed"

	if DefaultPolicy().UnsafeLabels[0] != "nsfw" {
		t.Error("Expected DefaultPolicy to return an independent label slice")
	}
}

func TestStrictPolicy(t *testing.T) {
	policy := StrictPolicy()

	if policy.Severity.High != 0.8 || policy.Severity.Medium != 0.5 || policy.Severity.Low != 0.3 {
		t.Errorf("Unexpected strict cutoffs: %+v", policy.Severity)
	}
	if policy.SeverityOf(0.85) != "high" {
		t.Errorf("Expected high for 0.85 under strict policy, got %s", policy.SeverityOf(0.85))
	}
}

func TestPolicyFingerprint(t *testing.T) {
	base := DefaultPolicy()

	reordered := base.WithUnsafeLabels("Explicit", "gore", "violence", "inappropriate", "NSFW")
	if base.Fingerprint() != reordered.Fingerprint() {
		t.Errorf("Expected label order and case to be ignored, got %q vs %q", base.Fingerprint(), reordered.Fingerprint())
	}
	if base.Fingerprint() == base.WithUnsafeLabels("gore").Fingerprint() {
		t.Error("Expected a different label set to change the fingerprint")
	}
	if base.Fingerprint() == StrictPolicy().Fingerprint() {
		t.Error("Expected different cutoffs to change the fingerprint")
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		policy ModerationPolicy
	}{
		{"empty labels", DefaultPolicy().WithUnsafeLabels()},
		{"blank label", DefaultPolicy().WithUnsafeLabels("nsfw", " ")},
		{"cutoff above one", DefaultPolicy().WithSeverityCutoffs(1.1, 0.7, 0.5)},
		{"unordered cutoffs", DefaultPolicy().WithSeverityCutoffs(0.5, 0.7, 0.9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	doc := []byte(`
unsafe_labels: [porn, hentai, sexy]
severity:
  high: 0.85
`)

	policy, err := ParsePolicy(doc, DefaultPolicy())
	if err != nil {
		t.Fatalf("Expected valid policy, got %v", err)
	}
	if !policy.IsUnsafe("HENTAI") || policy.IsUnsafe("nsfw") {
		t.Errorf("Expected label set to be replaced, got %v", policy.UnsafeLabels)
	}
	if policy.Severity.High != 0.85 || policy.Severity.Medium != 0.7 || policy.Severity.Low != 0.5 {
		t.Errorf("Expected omitted cutoffs to keep base values, got %+v", policy.Severity)
	}
}

func TestParsePolicy_Invalid(t *testing.T) {
	if _, err := ParsePolicy([]byte("unsafe_labels: []"), DefaultPolicy()); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for empty label set, got %v", err)
	}
	if _, err := ParsePolicy([]byte("severity: [1, 2"), DefaultPolicy()); err == nil {
		t.Error("Expected YAML syntax error")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("severity:\n  low: 0.4\n"), 0o600); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	policy, err := LoadPolicyFile(path, StrictPolicy())
	if err != nil {
		t.Fatalf("Expected policy to load, got %v", err)
	}
	if policy.Severity.High != 0.8 || policy.Severity.Low != 0.4 {
		t.Errorf("Expected strict base with low=0.4, got %+v", policy.Severity)
	}

	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultPolicy()); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestPolicyPreset(t *testing.T) {
	for _, name := range []string{"", "default", "DEFAULT", "strict"} {
		if _, err := PolicyPreset(name); err != nil {
			t.Errorf("Expected preset %q to resolve, got %v", name, err)
		}
	}
	if _, err := PolicyPreset("lenient"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}
