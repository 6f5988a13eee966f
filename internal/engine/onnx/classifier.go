package onnx

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/floats"
)

// DefaultLabelAliases maps the stock NSFW classifier vocabulary onto the moderation vocabulary
var DefaultLabelAliases = map[string]string{
	"porn":   "explicit",
	"hentai": "nsfw",
	"sexy":   "inappropriate",
}

// ClassifierConfig configures an image classifier
type ClassifierConfig struct {
	ModelPath  string
	LabelsFile string
	InputSize  int
	// Aliases renames model labels before scores are reported. Nil uses DefaultLabelAliases.
	Aliases map[string]string
	// Softmax applies a softmax to the output; leave false for models that emit probabilities.
	Softmax bool
}

// Classifier runs a single-label image classifier with output [1, classes]
type Classifier struct {
	session *Session
	size    int
	labels  []string
	softmax bool
}

// NewClassifier loads the model and its labels
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("classifier input size must be positive, got %d", cfg.InputSize)
	}

	labels, err := labelsOrDefault(cfg.LabelsFile, ModerationLabels)
	if err != nil {
		return nil, err
	}

	session, err := NewSession(SessionSpec{
		ModelPath:   cfg.ModelPath,
		InputName:   "input",
		OutputName:  "output",
		InputShape:  ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)),
		OutputShape: ort.NewShape(1, int64(len(labels))),
	})
	if err != nil {
		return nil, err
	}

	aliases := cfg.Aliases
	if aliases == nil {
		aliases = DefaultLabelAliases
	}

	return &Classifier{
		session: session,
		size:    cfg.InputSize,
		labels:  applyAliases(labels, aliases),
		softmax: cfg.Softmax,
	}, nil
}

// Classify implements analyzer.ClassificationEngine
func (c *Classifier) Classify(ctx context.Context, img image.Image) ([]analyzer.LabelScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output, err := c.session.Run(ToCHW(img, c.size))
	if err != nil {
		return nil, err
	}
	return scoreLabels(output, c.labels, c.softmax)
}

// Close releases the underlying session
func (c *Classifier) Close() error {
	c.session.Destroy()
	return nil
}

func applyAliases(labels []string, aliases map[string]string) []string {
	out := make([]string, len(labels))
	for i, label := range labels {
		if alias, ok := aliases[strings.ToLower(label)]; ok {
			out[i] = alias
			continue
		}
		out[i] = label
	}
	return out
}

// scoreLabels pairs raw model output with labels in model order
func scoreLabels(output []float32, labels []string, applySoftmax bool) ([]analyzer.LabelScore, error) {
	if len(output) != len(labels) {
		return nil, fmt.Errorf("unexpected output length: got %d, want %d", len(output), len(labels))
	}

	scores := make([]float64, len(output))
	for i, v := range output {
		scores[i] = float64(v)
	}
	if applySoftmax {
		softmax(scores)
	}

	result := make([]analyzer.LabelScore, len(labels))
	for i, label := range labels {
		result[i] = analyzer.LabelScore{Label: label, Score: scores[i]}
	}
	return result, nil
}

// softmax normalizes logits in place
func softmax(logits []float64) {
	if len(logits) == 0 {
		return
	}
	floats.AddConst(-floats.Max(logits), logits)
	for i, v := range logits {
		logits[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(logits), logits)
}
