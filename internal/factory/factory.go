package factory

import (
	"fmt"
	"io"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	"github.com/anime-shed/vision-guard-go/internal/config"
	"github.com/anime-shed/vision-guard-go/internal/engine/onnx"
	"github.com/anime-shed/vision-guard-go/internal/storage"
)

// EngineType represents the kinds of inference engines the service runs
type EngineType string

const (
	// DetectionEngineType for object detection
	DetectionEngineType EngineType = "detection"
	// ModerationEngineType for content classification
	ModerationEngineType EngineType = "moderation"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// HTTPStorage for HTTP-based image fetching
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
)

// DetectionEngine is a detection engine holding native resources
type DetectionEngine interface {
	analyzer.DetectionEngine
	io.Closer
}

// ClassificationEngine is a classification engine holding native resources
type ClassificationEngine interface {
	analyzer.ClassificationEngine
	io.Closer
}

// EngineFactory creates inference engines
type EngineFactory interface {
	CreateDetectionEngine() (DetectionEngine, error)
	CreateClassificationEngine() (ClassificationEngine, error)
}

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateFetcher() storage.ImageFetcher
	// CreateBlobStorage returns nil without error when the backend is not configured
	CreateBlobStorage() (storage.BlobStorage, error)
}

// onnxEngineFactory implements EngineFactory on ONNX Runtime
type onnxEngineFactory struct {
	cfg *config.Config
}

// NewEngineFactory creates a new engine factory. The ONNX runtime must be initialized first.
func NewEngineFactory(cfg *config.Config) EngineFactory {
	return &onnxEngineFactory{cfg: cfg}
}

// CreateDetectionEngine loads the configured detection model
func (f *onnxEngineFactory) CreateDetectionEngine() (DetectionEngine, error) {
	detector, err := onnx.NewDetector(onnx.DetectorConfig{
		ModelPath:  f.cfg.DetectionModelPath,
		LabelsFile: f.cfg.DetectionLabelsFile,
		InputSize:  f.cfg.DetectionInputSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%s engine: %w", DetectionEngineType, err)
	}
	return detector, nil
}

// CreateClassificationEngine loads the configured moderation model
func (f *onnxEngineFactory) CreateClassificationEngine() (ClassificationEngine, error) {
	classifier, err := onnx.NewClassifier(onnx.ClassifierConfig{
		ModelPath:  f.cfg.ModerationModelPath,
		LabelsFile: f.cfg.ModerationLabelsFile,
		InputSize:  f.cfg.ModerationInputSize,
		Softmax:    f.cfg.ModerationSoftmax,
	})
	if err != nil {
		return nil, fmt.Errorf("%s engine: %w", ModerationEngineType, err)
	}
	return classifier, nil
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateFetcher creates the HTTP image fetcher
func (f *storageFactory) CreateFetcher() storage.ImageFetcher {
	return storage.NewHTTPImageFetcher(f.cfg.ImageFetchTimeout)
}

// CreateBlobStorage creates the Azure blob backend when credentials are configured
func (f *storageFactory) CreateBlobStorage() (storage.BlobStorage, error) {
	if !f.cfg.AzureEnabled() {
		return nil, nil
	}
	blobs, err := storage.NewAzureStorage(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey)
	if err != nil {
		return nil, fmt.Errorf("%s storage: %w", AzureStorage, err)
	}
	return blobs, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	EngineFactory  EngineFactory
	StorageFactory StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		EngineFactory:  NewEngineFactory(cfg),
		StorageFactory: NewStorageFactory(cfg),
	}
}
