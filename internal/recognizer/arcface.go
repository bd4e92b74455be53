package recognizer

import (
	"fmt"
	"math"

	"github.com/dudu/facekit/internal/align"
	"github.com/dudu/facekit/internal/detector"
	"github.com/dudu/facekit/internal/inference"
)

// Embedding is an L2-normalized face identity descriptor. Its length
// follows the model output (512 for standard ArcFace exports) and is
// only meaningful under cosine comparison, never exact equality.
type Embedding []float32

// session is the slice of inference.Session the recognizer relies on.
type session interface {
	Run(input []float32, shape []int64) ([][]float32, error)
	OutputCount() int
	Destroy() error
}

// ArcFace extracts identity embeddings from detected faces.
//
// An ArcFace exclusively owns its model session and must not be called
// from multiple goroutines at once; use one instance per worker.
type ArcFace struct {
	session session
}

// NewArcFace loads the recognition model at modelPath. The model must
// expose a single input and a single output; their names are discovered
// at load time.
func NewArcFace(modelPath string) (*ArcFace, error) {
	sess, err := inference.NewSession(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognition model: %w", err)
	}
	rec, err := newArcFace(sess)
	if err != nil {
		sess.Destroy()
		return nil, err
	}
	return rec, nil
}

func newArcFace(sess session) (*ArcFace, error) {
	if sess.OutputCount() != 1 {
		return nil, fmt.Errorf("recognition model must have a single output, got %d", sess.OutputCount())
	}
	return &ArcFace{session: sess}, nil
}

// GetEmbedding aligns the detected face out of the photo, runs the
// recognition model on the canonical crop and returns the L2-normalized
// embedding. The face's landmarks must be in original photo pixel
// coordinates.
func (a *ArcFace) GetEmbedding(img []uint8, width, height int, face detector.Face) (Embedding, error) {
	if a.session == nil {
		return nil, fmt.Errorf("no recognition model loaded")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if len(img) < width*height*3 {
		return nil, fmt.Errorf("image buffer too small: %d bytes for %dx%d", len(img), width, height)
	}

	crop, err := align.Crop(img, width, height, face.Landmarks)
	if err != nil {
		return nil, fmt.Errorf("alignment failed: %w", err)
	}

	outputs, err := a.session.Run(blobFromCrop(crop), []int64{1, 3, align.CropSize, align.CropSize})
	if err != nil {
		return nil, err
	}

	embedding := Embedding(outputs[0])
	embedding.normalize()
	return embedding, nil
}

// Close releases the recognizer's model session.
func (a *ArcFace) Close() error {
	return a.session.Destroy()
}

// blobFromCrop normalizes an aligned RGB crop to (v-127.5)/127.5 and
// lays it out planar BGR, the [1,3,112,112] layout ArcFace expects.
func blobFromCrop(crop []uint8) []float32 {
	plane := align.CropSize * align.CropSize
	blob := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		s := i * 3
		blob[0*plane+i] = (float32(crop[s+2]) - 127.5) / 127.5
		blob[1*plane+i] = (float32(crop[s+1]) - 127.5) / 127.5
		blob[2*plane+i] = (float32(crop[s]) - 127.5) / 127.5
	}
	return blob
}

// normalize scales the vector to unit Euclidean length in place. A
// near-zero vector is left as is rather than divided into NaNs.
func (e Embedding) normalize() {
	var norm float64
	for _, v := range e {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range e {
		e[i] = float32(float64(e[i]) / norm)
	}
}

// Similarity returns the dot product of two embeddings, which for
// L2-normalized vectors is their cosine similarity in [-1,1]. Vectors
// of different lengths, or empty ones, score 0. Thresholding the result
// into same/different identity is the clustering side's policy.
func Similarity(a, b Embedding) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
