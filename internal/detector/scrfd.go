package detector

import (
	"fmt"
	"sort"

	"github.com/dudu/facekit/internal/inference"
)

const (
	// InputSize is the fixed square input resolution of the detection model.
	InputSize = 640

	nmsThreshold = 0.4
	numAnchors   = 2
)

var featureStrides = [3]int{8, 16, 32}

// session is the slice of inference.Session the detector relies on.
type session interface {
	Run(input []float32, shape []int64) ([][]float32, error)
	OutputCount() int
	Destroy() error
}

// SCRFD detects faces and their 5-point landmarks in RGB images.
//
// An SCRFD exclusively owns its model session and must not be called
// from multiple goroutines at once; use one instance per worker.
type SCRFD struct {
	session session
	hasKps  bool
}

// NewSCRFD loads the detection model at modelPath. The model's output
// count determines its capability: 9 outputs means boxes plus
// landmarks, 6 means boxes only.
func NewSCRFD(modelPath string) (*SCRFD, error) {
	sess, err := inference.NewSession(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection model: %w", err)
	}
	det, err := newSCRFD(sess)
	if err != nil {
		sess.Destroy()
		return nil, err
	}
	return det, nil
}

func newSCRFD(sess session) (*SCRFD, error) {
	// 3 score + 3 box tensors, plus 3 landmark tensors when exported
	// with keypoints.
	switch sess.OutputCount() {
	case 9:
		return &SCRFD{session: sess, hasKps: true}, nil
	case 6:
		return &SCRFD{session: sess, hasKps: false}, nil
	default:
		return nil, fmt.Errorf("unsupported detection model: %d outputs", sess.OutputCount())
	}
}

// HasLandmarks reports whether the loaded model predicts landmarks.
func (s *SCRFD) HasLandmarks() bool {
	return s.hasKps
}

// Detect finds faces in an RGB image buffer (row-major, 3 bytes per
// pixel). Candidates scoring below scoreThreshold are discarded. If
// maxFaces is positive and more faces survive suppression, only the
// largest maxFaces by box area are returned: the photo grid cares about
// prominent faces, not the most confident detections.
func (s *SCRFD) Detect(img []uint8, width, height int, scoreThreshold float32, maxFaces int) ([]Face, error) {
	if s.session == nil {
		return nil, fmt.Errorf("no detection model loaded")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if len(img) < width*height*3 {
		return nil, fmt.Errorf("image buffer too small: %d bytes for %dx%d", len(img), width, height)
	}

	blob, detScale := preprocess(img, width, height)

	outputs, err := s.session.Run(blob, []int64{1, 3, InputSize, InputSize})
	if err != nil {
		return nil, err
	}

	faces, err := s.decode(outputs, scoreThreshold, detScale)
	if err != nil {
		return nil, err
	}

	faces = nms(faces, nmsThreshold)

	if maxFaces > 0 && len(faces) > maxFaces {
		sort.Slice(faces, func(i, j int) bool {
			return faces[i].BoundingBox.Area() > faces[j].BoundingBox.Area()
		})
		faces = faces[:maxFaces]
	}

	return faces, nil
}

// Close releases the detector's model session.
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

// preprocess letterboxes the image into the model input square and
// returns the planar BGR blob plus the scale that was applied.
func preprocess(img []uint8, width, height int) ([]float32, float32) {
	imRatio := float32(height) / float32(width)
	var newW, newH int
	if imRatio > 1 {
		newH = InputSize
		newW = int(float32(newH) / imRatio)
	} else {
		newW = InputSize
		newH = int(float32(newW) * imRatio)
	}
	detScale := float32(newH) / float32(height)

	resized := make([]uint8, newW*newH*3)
	bilinearResize(img, width, height, resized, newW, newH)

	// Pad with zeros, normalize (v-127.5)/128 and swap RGB to BGR while
	// laying out channel-major.
	plane := InputSize * InputSize
	blob := make([]float32, 3*plane)
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			src := (y*newW + x) * 3
			dst := y*InputSize + x
			blob[0*plane+dst] = (float32(resized[src+2]) - 127.5) / 128.0
			blob[1*plane+dst] = (float32(resized[src+1]) - 127.5) / 128.0
			blob[2*plane+dst] = (float32(resized[src+0]) - 127.5) / 128.0
		}
	}
	return blob, detScale
}

// decode converts raw pyramid outputs into faces in original photo
// coordinates. Output order is scores[0..2], boxes[3..5], kps[6..8],
// each flattened row-major over (cell, anchor).
func (s *SCRFD) decode(outputs [][]float32, scoreThreshold, detScale float32) ([]Face, error) {
	var faces []Face

	for level, stride := range featureStrides {
		fmSize := InputSize / stride
		total := fmSize * fmSize * numAnchors

		scores := outputs[level]
		boxes := outputs[level+3]
		var kps []float32
		if s.hasKps {
			kps = outputs[level+6]
		}
		if len(scores) < total || len(boxes) < total*4 || (s.hasKps && len(kps) < total*10) {
			return nil, fmt.Errorf("stride %d output shorter than %d anchors", stride, total)
		}

		fs := float32(stride)
		idx := 0
		for y := 0; y < fmSize; y++ {
			for x := 0; x < fmSize; x++ {
				// Both anchors of a cell share the same center; the
				// exported weights assume this grid, so it stays.
				cx := float32(x) * fs
				cy := float32(y) * fs
				for a := 0; a < numAnchors; a++ {
					score := scores[idx]
					if score < scoreThreshold {
						idx++
						continue
					}

					b := idx * 4
					face := Face{
						Score: score,
						BoundingBox: BoundingBox{
							X1: (cx - boxes[b]*fs) / detScale,
							Y1: (cy - boxes[b+1]*fs) / detScale,
							X2: (cx + boxes[b+2]*fs) / detScale,
							Y2: (cy + boxes[b+3]*fs) / detScale,
						},
					}
					if s.hasKps {
						k := idx * 10
						face.Landmarks = Landmarks{
							LeftEye:    Point{(cx + kps[k]*fs) / detScale, (cy + kps[k+1]*fs) / detScale},
							RightEye:   Point{(cx + kps[k+2]*fs) / detScale, (cy + kps[k+3]*fs) / detScale},
							Nose:       Point{(cx + kps[k+4]*fs) / detScale, (cy + kps[k+5]*fs) / detScale},
							LeftMouth:  Point{(cx + kps[k+6]*fs) / detScale, (cy + kps[k+7]*fs) / detScale},
							RightMouth: Point{(cx + kps[k+8]*fs) / detScale, (cy + kps[k+9]*fs) / detScale},
						}
					}
					faces = append(faces, face)
					idx++
				}
			}
		}
	}

	return faces, nil
}

// bilinearResize scales an RGB buffer to dstW x dstH.
func bilinearResize(src []uint8, srcW, srcH int, dst []uint8, dstW, dstH int) {
	xRatio := float32(srcW) / float32(dstW)
	yRatio := float32(srcH) / float32(dstH)

	for y := 0; y < dstH; y++ {
		srcY := float32(y) * yRatio
		y0 := int(srcY)
		y1 := min(y0+1, srcH-1)
		fy := srcY - float32(y0)

		for x := 0; x < dstW; x++ {
			srcX := float32(x) * xRatio
			x0 := int(srcX)
			x1 := min(x0+1, srcW-1)
			fx := srcX - float32(x0)

			for c := 0; c < 3; c++ {
				v00 := float32(src[(y0*srcW+x0)*3+c])
				v01 := float32(src[(y0*srcW+x1)*3+c])
				v10 := float32(src[(y1*srcW+x0)*3+c])
				v11 := float32(src[(y1*srcW+x1)*3+c])
				v := v00*(1-fx)*(1-fy) + v01*fx*(1-fy) +
					v10*(1-fx)*fy + v11*fx*fy
				dst[(y*dstW+x)*3+c] = uint8(v + 0.5)
			}
		}
	}
}
