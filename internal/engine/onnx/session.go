package onnx

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// SessionSpec describes a single-input single-output model
type SessionSpec struct {
	ModelPath   string
	InputName   string
	OutputName  string
	InputShape  ort.Shape
	OutputShape ort.Shape
}

// Session owns an onnxruntime session together with its bound tensors.
// Run is serialized because the tensors are reused between calls.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewSession creates the session and allocates its input and output tensors
func NewSession(spec SessionSpec) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](spec.InputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](spec.OutputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		spec.ModelPath,
		[]string{spec.InputName},
		[]string{spec.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating session for %s: %w", spec.ModelPath, err)
	}

	return &Session{session: session, input: input, output: output}, nil
}

// Run copies data into the input tensor, runs the model and returns a copy of the output
func (s *Session) Run(data []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.input.GetData()
	if len(data) != len(dst) {
		return nil, fmt.Errorf("input length %d does not match tensor size %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	out := s.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Destroy releases the session and its tensors
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
}
