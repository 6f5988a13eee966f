package onnx

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"bare list", "- cat\n- dog\n", []string{"cat", "dog"}},
		{"names list", "names: [cat, dog]\n", []string{"cat", "dog"}},
		{"names map", "names:\n  1: dog\n  0: cat\n", []string{"cat", "dog"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLabels([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Expected success, got %v", err)
			}
			if len(got) != len(tt.want) || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseLabels_Invalid(t *testing.T) {
	docs := []string{
		"other: value\n",
		"names:\n  0: cat\n  5: dog\n",
		"names: []\n",
	}
	for _, doc := range docs {
		if _, err := ParseLabels([]byte(doc)); err == nil {
			t.Errorf("Expected error for %q", doc)
		}
	}
}

func TestLabelsOrDefault(t *testing.T) {
	labels, err := labelsOrDefault("", COCOLabels)
	if err != nil || len(labels) != 80 {
		t.Fatalf("Expected 80 COCO labels, got %d (%v)", len(labels), err)
	}
	labels[0] = "changed"
	if COCOLabels[0] != "person" {
		t.Error("Expected default labels to be copied")
	}

	path := filepath.Join(t.TempDir(), "labels.yaml")
	if err := os.WriteFile(path, []byte("names: [a, b, c]\n"), 0o600); err != nil {
		t.Fatalf("Failed to write labels: %v", err)
	}
	labels, err = labelsOrDefault(path, COCOLabels)
	if err != nil || len(labels) != 3 {
		t.Errorf("Expected 3 labels from file, got %v (%v)", labels, err)
	}
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	buffer := ToCHW(img, 4)
	if len(buffer) != 3*4*4 {
		t.Fatalf("Expected %d values, got %d", 3*4*4, len(buffer))
	}
	if buffer[0] != 1 || buffer[16] != 0 || buffer[32] != 0.2 {
		t.Errorf("Expected planar normalized RGB, got r=%v g=%v b=%v", buffer[0], buffer[16], buffer[32])
	}
}
