package pipeline

import (
	"github.com/dudu/facekit/internal/detector"
	"github.com/dudu/facekit/internal/recognizer"
)

// FaceDetector finds faces in an RGB pixel buffer.
type FaceDetector interface {
	Detect(img []uint8, width, height int, scoreThreshold float32, maxFaces int) ([]detector.Face, error)
	Close() error
}

// FaceEncoder produces an identity embedding for a detected face.
type FaceEncoder interface {
	GetEmbedding(img []uint8, width, height int, face detector.Face) (recognizer.Embedding, error)
	Close() error
}
