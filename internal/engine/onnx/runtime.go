package onnx

import (
	"fmt"
	"sync"

	"github.com/anime-shed/vision-guard-go/internal/logger"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeMu          sync.Mutex
	runtimeInitialized bool
)

// InitRuntime loads the onnxruntime shared library and initializes the environment.
// It is safe to call more than once; only the first successful call does any work.
func InitRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx environment: %w", err)
	}

	runtimeInitialized = true
	logger.WithFields(logrus.Fields{
		"library": libPath,
	}).Info("ONNX runtime initialized")
	return nil
}

// ShutdownRuntime tears down the environment created by InitRuntime
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	runtimeInitialized = false
	return ort.DestroyEnvironment()
}
