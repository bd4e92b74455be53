// Package pipeline wires detection and recognition into the per-photo
// face indexing flow: detect faces, then extract one embedding per
// face. Embeddings leave the pipeline as plain values for the identity
// clustering side.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dudu/facekit/internal/detector"
	"github.com/dudu/facekit/internal/inference"
	"github.com/dudu/facekit/internal/recognizer"
)

// Config holds pipeline configuration.
type Config struct {
	DetectorModel   string
	RecognizerModel string
	ScoreThreshold  float32
	MaxFaces        int
}

// Result pairs a detected face with its identity embedding.
type Result struct {
	Face      detector.Face
	Embedding recognizer.Embedding
}

// Timing holds per-stage durations of the last IndexPhoto call.
type Timing struct {
	Detection   time.Duration
	Recognition time.Duration
	Total       time.Duration
}

// Pipeline owns one detector and one recognizer session. Calls are
// fully synchronous; the surrounding application is expected to run one
// Pipeline per background worker rather than sharing an instance
// across goroutines.
type Pipeline struct {
	config     Config
	detector   FaceDetector
	encoder    FaceEncoder
	log        *zap.Logger
	lastTiming Timing
}

// New initializes the inference runtime and loads both models.
func New(config Config, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := inference.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	det, err := detector.NewSCRFD(config.DetectorModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	enc, err := recognizer.NewArcFace(config.RecognizerModel)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}

	return &Pipeline{
		config:   config,
		detector: det,
		encoder:  enc,
		log:      log,
	}, nil
}

// IndexPhoto runs detection and embedding extraction over one photo
// (RGB, row-major). A face that cannot be embedded is logged and
// skipped so one bad face never aborts the photo, and a failed photo
// never aborts a library batch.
func (p *Pipeline) IndexPhoto(img []uint8, width, height int) ([]Result, error) {
	totalStart := time.Now()
	var timing Timing

	detectStart := time.Now()
	faces, err := p.detector.Detect(img, width, height, p.config.ScoreThreshold, p.config.MaxFaces)
	timing.Detection = time.Since(detectStart)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	results := make([]Result, 0, len(faces))
	for _, face := range faces {
		embedStart := time.Now()
		embedding, err := p.encoder.GetEmbedding(img, width, height, face)
		timing.Recognition += time.Since(embedStart)
		if err != nil {
			p.log.Warn("skipping face",
				zap.Float32("score", face.Score),
				zap.Error(err))
			continue
		}
		results = append(results, Result{Face: face, Embedding: embedding})
	}

	timing.Total = time.Since(totalStart)
	p.lastTiming = timing

	p.log.Debug("photo indexed",
		zap.Int("detected", len(faces)),
		zap.Int("embedded", len(results)),
		zap.Duration("detection", timing.Detection),
		zap.Duration("recognition", timing.Recognition),
		zap.Duration("total", timing.Total))

	return results, nil
}

// LastTiming returns timing from the last IndexPhoto call.
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// Close releases both model sessions and shuts down the runtime.
func (p *Pipeline) Close() error {
	var errs []error

	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.encoder != nil {
		if err := p.encoder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := inference.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
