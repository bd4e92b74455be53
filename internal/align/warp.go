package align

import (
	"fmt"
	"math"

	"github.com/dudu/facekit/internal/detector"
)

// WarpAffine resamples src (RGB, row-major) into dst through the
// inverse of the forward transform m, sampling with bilinear
// interpolation. Destination pixels whose bilinear footprint falls
// outside the source are set to black rather than edge-clamped, so
// out-of-frame regions around a tight face crop read as black.
//
// A singular transform is an error and leaves dst untouched.
func WarpAffine(src []uint8, srcW, srcH int, dst []uint8, dstW, dstH int, m Transform) error {
	det := m.A*m.D - m.B*m.C
	if math.Abs(float64(det)) < 1e-8 {
		return fmt.Errorf("singular transform (det=%g)", det)
	}

	invDet := 1 / det
	ia := m.D * invDet
	ib := -m.B * invDet
	ic := -m.C * invDet
	id := m.A * invDet
	itx := (m.B*m.Ty - m.D*m.Tx) * invDet
	ity := (m.C*m.Tx - m.A*m.Ty) * invDet

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			sx := ia*float32(x) + ib*float32(y) + itx
			sy := ic*float32(x) + id*float32(y) + ity

			x0 := int(math.Floor(float64(sx)))
			y0 := int(math.Floor(float64(sy)))
			fx := sx - float32(x0)
			fy := sy - float32(y0)

			d := (y*dstW + x) * 3
			if x0 < 0 || x0 >= srcW-1 || y0 < 0 || y0 >= srcH-1 {
				dst[d] = 0
				dst[d+1] = 0
				dst[d+2] = 0
				continue
			}

			for c := 0; c < 3; c++ {
				v00 := float32(src[(y0*srcW+x0)*3+c])
				v01 := float32(src[(y0*srcW+x0+1)*3+c])
				v10 := float32(src[((y0+1)*srcW+x0)*3+c])
				v11 := float32(src[((y0+1)*srcW+x0+1)*3+c])
				v := v00*(1-fx)*(1-fy) + v01*fx*(1-fy) +
					v10*(1-fx)*fy + v11*fx*fy
				dst[d+c] = uint8(min(max(v+0.5, 0), 255))
			}
		}
	}

	return nil
}

// Crop aligns the face identified by its 5 landmarks into a canonical
// CropSize x CropSize RGB buffer.
func Crop(img []uint8, width, height int, lm detector.Landmarks) ([]uint8, error) {
	m := EstimateSimilarity(lm.Points(), Template[:])
	dst := make([]uint8, CropSize*CropSize*3)
	if err := WarpAffine(img, width, height, dst, CropSize, CropSize, m); err != nil {
		return nil, err
	}
	return dst, nil
}
