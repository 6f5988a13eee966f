package analyzer

import (
	"testing"

	"github.com/anime-shed/vision-guard-go/pkg/models"
)

func TestRound_Idempotent(t *testing.T) {
	values := []float64{0, 0.123456789, 0.99995, 1.0, 12.3456, 0.00005, 639.999, -3.14159, 0.87654321}

	for _, v := range values {
		for _, places := range []int{2, 4} {
			once := Round(v, places)
			twice := Round(once, places)
			if once != twice {
				t.Errorf("Round(%v, %d) not idempotent: %v then %v", v, places, once, twice)
			}
		}
	}

	for i := 0; i <= 10000; i++ {
		v := float64(i) / 7919
		if Round(Round(v, 4), 4) != Round(v, 4) {
			t.Fatalf("Round not idempotent for %v", v)
		}
	}
}

func TestNormalizeDetections(t *testing.T) {
	raw := []RawDetection{
		{Label: "dog", LabelID: 16, Confidence: 0.876543, X1: 10.126, Y1: 20.004, X2: 110.996, Y2: 220.5},
		{Label: "cat", LabelID: 15, Confidence: 0.3, X1: -5.556, Y1: 0, X2: 700.111, Y2: 1},
	}

	got := NormalizeDetections(raw)
	if len(got) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(got))
	}

	first := got[0]
	if first.Label != "dog" || first.LabelID != 16 {
		t.Errorf("Expected label preserved, got %+v", first)
	}
	if first.Confidence != 0.8765 {
		t.Errorf("Expected confidence 0.8765, got %v", first.Confidence)
	}
	wantBox := models.BoundingBox{X1: 10.13, Y1: 20.0, X2: 111.0, Y2: 220.5}
	if first.BBox != wantBox {
		t.Errorf("Expected box %+v, got %+v", wantBox, first.BBox)
	}

	// Out-of-bounds boxes pass through unclamped.
	if got[1].BBox.X1 != -5.56 || got[1].BBox.X2 != 700.11 {
		t.Errorf("Expected unclamped coordinates, got %+v", got[1].BBox)
	}

	if len(NormalizeDetections(nil)) != 0 {
		t.Error("Expected empty result for no detections")
	}
}

func TestSeverityBoundaries(t *testing.T) {
	policy := DefaultPolicy()
	tests := []struct {
		score float64
		want  models.Severity
	}{
		{0.95, models.SeverityHigh},
		{0.9, models.SeverityMedium},
		{0.8, models.SeverityMedium},
		{0.7, models.SeverityLow},
		{0.6, models.SeverityLow},
		{0.5, models.SeverityNone},
		{0.3, models.SeverityNone},
		{0, models.SeverityNone},
	}

	for _, tt := range tests {
		if got := policy.SeverityOf(tt.score); got != tt.want {
			t.Errorf("SeverityOf(%v): expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestClassifyScores(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name         string
		scores       []LabelScore
		threshold    float64
		wantSafe     bool
		wantOverall  float64
		wantFlagged  string
		wantFlags    []string
		wantSeverity models.Severity
	}{
		{
			name:         "single unsafe label above threshold",
			scores:       []LabelScore{{"nsfw", 0.95}, {"normal", 0.05}},
			threshold:    0.7,
			wantSafe:     false,
			wantOverall:  0.95,
			wantFlagged:  "nsfw",
			wantFlags:    []string{"nsfw"},
			wantSeverity: models.SeverityHigh,
		},
		{
			name:         "safe labels never contribute",
			scores:       []LabelScore{{"normal", 0.99}, {"drawings", 0.98}},
			threshold:    0.7,
			wantSafe:     true,
			wantOverall:  0,
			wantSeverity: models.SeverityNone,
		},
		{
			name:         "overall is max of unsafe labels",
			scores:       []LabelScore{{"violence", 0.75}, {"gore", 0.85}, {"explicit", 0.2}},
			threshold:    0.7,
			wantSafe:     false,
			wantOverall:  0.85,
			wantFlagged:  "gore",
			wantFlags:    []string{"violence", "gore"},
			wantSeverity: models.SeverityMedium,
		},
		{
			name:         "score equal to threshold is safe and not flagged",
			scores:       []LabelScore{{"inappropriate", 0.7}},
			threshold:    0.7,
			wantSafe:     true,
			wantOverall:  0.7,
			wantSeverity: models.SeverityLow,
		},
		{
			name:         "label matching ignores case",
			scores:       []LabelScore{{"NSFW", 0.6}},
			threshold:    0.5,
			wantSafe:     false,
			wantOverall:  0.6,
			wantFlagged:  "NSFW",
			wantFlags:    []string{"NSFW"},
			wantSeverity: models.SeverityLow,
		},
		{
			name:         "no scores",
			threshold:    0.7,
			wantSafe:     true,
			wantSeverity: models.SeverityNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ClassifyScores(tt.scores, tt.threshold, policy)

			if v.IsSafe != tt.wantSafe {
				t.Errorf("Expected IsSafe=%v, got %v", tt.wantSafe, v.IsSafe)
			}
			if v.OverallScore != tt.wantOverall {
				t.Errorf("Expected overall %v, got %v", tt.wantOverall, v.OverallScore)
			}
			if v.Severity != tt.wantSeverity {
				t.Errorf("Expected severity %s, got %s", tt.wantSeverity, v.Severity)
			}
			if tt.wantFlagged == "" && v.FlaggedCategory != nil {
				t.Errorf("Expected no flagged category, got %s", *v.FlaggedCategory)
			}
			if tt.wantFlagged != "" && (v.FlaggedCategory == nil || *v.FlaggedCategory != tt.wantFlagged) {
				t.Errorf("Expected flagged category %s, got %v", tt.wantFlagged, v.FlaggedCategory)
			}
			if len(v.Flags) != len(tt.wantFlags) {
				t.Fatalf("Expected flags %v, got %+v", tt.wantFlags, v.Flags)
			}
			for i, name := range tt.wantFlags {
				if v.Flags[i].Category != name {
					t.Errorf("Expected flag %d to be %s, got %s", i, name, v.Flags[i].Category)
				}
			}
			if len(v.Categories) != len(tt.scores) {
				t.Errorf("Expected every label in categories, got %v", v.Categories)
			}
			if v.IsSafe != (v.OverallScore <= v.Threshold) {
				t.Error("Expected IsSafe to agree with overall score and threshold")
			}
		})
	}
}

func TestClassifyScores_RoundsCategories(t *testing.T) {
	v := ClassifyScores([]LabelScore{{"nsfw", 0.912345}, {"neutral", 0.087665}}, 0.7, DefaultPolicy())

	if v.Categories["nsfw"] != 0.9123 || v.Categories["neutral"] != 0.0877 {
		t.Errorf("Expected 4dp categories, got %v", v.Categories)
	}
	if v.Flags[0].Confidence != 0.9123 || v.OverallScore != 0.9123 {
		t.Errorf("Expected 4dp flag and overall score, got %+v / %v", v.Flags, v.OverallScore)
	}
}

func TestClassifyScores_CustomPolicy(t *testing.T) {
	policy := DefaultPolicy().WithUnsafeLabels("porn", "hentai").WithSeverityCutoffs(0.8, 0.6, 0.4)

	v := ClassifyScores([]LabelScore{{"porn", 0.65}, {"nsfw", 0.99}}, 0.5, policy)
	if v.OverallScore != 0.65 {
		t.Errorf("Expected only policy labels to count, got %v", v.OverallScore)
	}
	if v.Severity != models.SeverityMedium {
		t.Errorf("Expected custom cutoffs to apply, got %s", v.Severity)
	}
}

func TestVerdictMessage(t *testing.T) {
	safe := ClassifyScores([]LabelScore{{"nsfw", 0.1}}, 0.7, DefaultPolicy())
	if got := VerdictMessage(safe); got != "Image passed content moderation checks." {
		t.Errorf("Unexpected safe message: %s", got)
	}

	unsafe := ClassifyScores([]LabelScore{{"nsfw", 0.95}}, 0.7, DefaultPolicy())
	want := "Image flagged as potentially inappropriate. Primary concern: nsfw (confidence: 95.00%)"
	if got := VerdictMessage(unsafe); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
