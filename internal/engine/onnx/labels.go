package onnx

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// COCOLabels are the 80 class names used by the stock YOLOv8 weights
var COCOLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}

// ModerationLabels are the output classes of the default NSFW classifier
var ModerationLabels = []string{"drawings", "hentai", "neutral", "porn", "sexy"}

type labelFile struct {
	Names yaml.Node `yaml:"names"`
}

// LoadLabels reads class names from a YAML file. Both the list form
// (names: [a, b]) and the index map form (names: {0: a, 1: b}) are accepted,
// as is a bare top-level list.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	return ParseLabels(data)
}

// ParseLabels decodes a label document; see LoadLabels
func ParseLabels(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var doc labelFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	switch doc.Names.Kind {
	case yaml.SequenceNode:
		if err := doc.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("parse labels: %w", err)
		}
	case yaml.MappingNode:
		var indexed map[int]string
		if err := doc.Names.Decode(&indexed); err != nil {
			return nil, fmt.Errorf("parse labels: %w", err)
		}
		list = make([]string, len(indexed))
		for id, name := range indexed {
			if id < 0 || id >= len(indexed) {
				return nil, fmt.Errorf("parse labels: class id %d out of range", id)
			}
			list[id] = name
		}
	default:
		return nil, fmt.Errorf("parse labels: missing names")
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("parse labels: no class names")
	}
	return list, nil
}

// labelsOrDefault loads labels from path when set, otherwise returns a copy of fallback
func labelsOrDefault(path string, fallback []string) ([]string, error) {
	if path == "" {
		return append([]string(nil), fallback...), nil
	}
	return LoadLabels(path)
}
