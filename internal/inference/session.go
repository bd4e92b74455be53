package inference

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment (call once at startup).
// The shared library location can be overridden with FACEKIT_ORT_LIB.
func Initialize() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if path := os.Getenv("FACEKIT_ORT_LIB"); path != "" {
		ort.SetSharedLibraryPath(path)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps a single-model ONNX Runtime inference session. Input and
// output tensor names are discovered from the model file at load time
// rather than hardcoded, so exports with differing naming conventions
// still load.
//
// A Session exclusively owns its model handle and is not safe for
// concurrent use; callers needing parallelism create one Session per
// worker and serialize calls on each.
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputName   string
	outputNames []string
	outputDims  [][]int64
}

// NewSession loads the model at modelPath and discovers its tensor names.
// The model must have exactly one input.
func NewSession(modelPath string) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("model %s: expected a single input, got %d", modelPath, len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model %s: no outputs", modelPath)
	}

	inputName := inputs[0].Name
	outputNames := make([]string, len(outputs))
	outputDims := make([][]int64, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
		outputDims[i] = append([]int64(nil), out.Dimensions...)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(2); err != nil {
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	// CoreML when available, CPU otherwise.
	if err := options.AppendExecutionProviderCoreML(0); err != nil {
		zap.L().Debug("CoreML unavailable, using CPU",
			zap.String("model", modelPath), zap.Error(err))
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{inputName}, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	zap.L().Info("model loaded",
		zap.String("path", modelPath),
		zap.String("input", inputName),
		zap.Int("outputs", len(outputNames)))

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputName:   inputName,
		outputNames: outputNames,
		outputDims:  outputDims,
	}, nil
}

// Run executes one synchronous inference call. The input is a flat
// row-major tensor with the given shape; every model output is returned
// as a flat float32 slice, in model declaration order.
func (s *Session) Run(input []float32, shape []int64) ([][]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// Output tensors are allocated by the runtime so dynamically sized
	// outputs (e.g. embedding dimensionality) need no upfront shapes.
	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	results := make([][]float32, len(outputs))
	for i, out := range outputs {
		tensor, ok := out.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s is not a float32 tensor", s.outputNames[i])
		}
		results[i] = append([]float32(nil), tensor.GetData()...)
	}
	return results, nil
}

// OutputCount returns the number of output tensors the model declares.
func (s *Session) OutputCount() int {
	return len(s.outputNames)
}

// OutputDims returns the declared shape of output i. Dynamic dimensions
// are reported as -1.
func (s *Session) OutputDims(i int) []int64 {
	return s.outputDims[i]
}

// ModelPath returns the path the session was loaded from.
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Destroy releases the session and its model memory.
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
