package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dudu/facekit/internal/detector"
	"github.com/dudu/facekit/internal/recognizer"
)

type fakeDetector struct {
	faces         []detector.Face
	err           error
	lastThreshold float32
	lastMaxFaces  int
	closed        bool
}

func (f *fakeDetector) Detect(img []uint8, width, height int, scoreThreshold float32, maxFaces int) ([]detector.Face, error) {
	f.lastThreshold = scoreThreshold
	f.lastMaxFaces = maxFaces
	return f.faces, f.err
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

type fakeEncoder struct {
	embedding recognizer.Embedding
	// failOn holds face scores whose embedding call should fail.
	failOn map[float32]bool
	calls  int
	closed bool
}

func (f *fakeEncoder) GetEmbedding(img []uint8, width, height int, face detector.Face) (recognizer.Embedding, error) {
	f.calls++
	if f.failOn[face.Score] {
		return nil, fmt.Errorf("bad crop")
	}
	return append(recognizer.Embedding(nil), f.embedding...), nil
}

func (f *fakeEncoder) Close() error {
	f.closed = true
	return nil
}

func face(score float32) detector.Face {
	return detector.Face{
		BoundingBox: detector.BoundingBox{X1: 10, Y1: 10, X2: 60, Y2: 70},
		Score:       score,
	}
}

func newTestPipeline(det *fakeDetector, enc *fakeEncoder) *Pipeline {
	return &Pipeline{
		config:   Config{ScoreThreshold: 0.5, MaxFaces: 10},
		detector: det,
		encoder:  enc,
		log:      zap.NewNop(),
	}
}

func TestIndexPhoto(t *testing.T) {
	det := &fakeDetector{faces: []detector.Face{face(0.9), face(0.7)}}
	enc := &fakeEncoder{embedding: recognizer.Embedding{0.6, 0.8}}
	p := newTestPipeline(det, enc)

	results, err := p.IndexPhoto(make([]uint8, 100*100*3), 100, 100)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.InDelta(t, 0.9, results[0].Face.Score, 1e-6)
	assert.Equal(t, recognizer.Embedding{0.6, 0.8}, results[0].Embedding)
	assert.Equal(t, 2, enc.calls)

	// Configured thresholds flow through to the detector.
	assert.InDelta(t, 0.5, det.lastThreshold, 1e-6)
	assert.Equal(t, 10, det.lastMaxFaces)
}

func TestIndexPhotoNoFaces(t *testing.T) {
	p := newTestPipeline(&fakeDetector{}, &fakeEncoder{})

	results, err := p.IndexPhoto(make([]uint8, 100*100*3), 100, 100)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexPhotoSkipsFailedFaces(t *testing.T) {
	det := &fakeDetector{faces: []detector.Face{face(0.9), face(0.7), face(0.6)}}
	enc := &fakeEncoder{
		embedding: recognizer.Embedding{1, 0},
		failOn:    map[float32]bool{0.7: true},
	}
	p := newTestPipeline(det, enc)

	results, err := p.IndexPhoto(make([]uint8, 100*100*3), 100, 100)
	require.NoError(t, err)

	// The failing face is dropped; the others still come through.
	require.Len(t, results, 2)
	assert.InDelta(t, 0.9, results[0].Face.Score, 1e-6)
	assert.InDelta(t, 0.6, results[1].Face.Score, 1e-6)
	assert.Equal(t, 3, enc.calls)
}

func TestIndexPhotoDetectorErrorAborts(t *testing.T) {
	det := &fakeDetector{err: fmt.Errorf("bad buffer")}
	enc := &fakeEncoder{}
	p := newTestPipeline(det, enc)

	results, err := p.IndexPhoto(nil, 0, 0)
	assert.Error(t, err)
	assert.Nil(t, results)
	assert.Zero(t, enc.calls)
}

func TestIndexPhotoTiming(t *testing.T) {
	det := &fakeDetector{faces: []detector.Face{face(0.9)}}
	enc := &fakeEncoder{embedding: recognizer.Embedding{1}}
	p := newTestPipeline(det, enc)

	_, err := p.IndexPhoto(make([]uint8, 100*100*3), 100, 100)
	require.NoError(t, err)

	timing := p.LastTiming()
	assert.GreaterOrEqual(t, timing.Total, timing.Detection)
	assert.GreaterOrEqual(t, timing.Total, timing.Recognition)
	assert.Greater(t, timing.Total.Nanoseconds(), int64(0))
}

func TestCloseReleasesBothSessions(t *testing.T) {
	det := &fakeDetector{}
	enc := &fakeEncoder{}
	p := newTestPipeline(det, enc)

	require.NoError(t, p.Close())
	assert.True(t, det.closed)
	assert.True(t, enc.closed)
}
