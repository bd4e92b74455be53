// Package align maps detected faces onto the canonical crop the
// recognition model was trained on: a least-squares similarity
// transform from the 5 detected landmarks to a fixed template, followed
// by an inverse-mapped bilinear warp.
package align

import (
	"math"

	"github.com/dudu/facekit/internal/detector"
)

// CropSize is the side length of the aligned face crop.
const CropSize = 112

// Template is the canonical ArcFace landmark layout in CropSize space:
// left eye, right eye, nose, left mouth, right mouth.
var Template = [5]detector.Point{
	{X: 38.2946, Y: 51.6963},
	{X: 73.5318, Y: 51.5014},
	{X: 56.0252, Y: 71.7366},
	{X: 41.5493, Y: 92.3655},
	{X: 70.7299, Y: 92.2041},
}

// Transform is a 2x3 affine matrix [A B Tx; C D Ty]. Transforms built
// by EstimateSimilarity are restricted by construction to uniform
// scale, rotation and translation, never shear.
type Transform struct {
	A, B, Tx float32
	C, D, Ty float32
}

// Apply maps a point through the transform.
func (t Transform) Apply(p detector.Point) detector.Point {
	return detector.Point{
		X: t.A*p.X + t.B*p.Y + t.Tx,
		Y: t.C*p.X + t.D*p.Y + t.Ty,
	}
}

// EstimateSimilarity computes the least-squares similarity transform
// mapping src onto dst, which must have equal lengths. The rotation
// comes in closed form from the 2x2 cross-covariance of the centered
// point sets; the scale is then the least-squares optimum for that
// rotation, so no SVD or iteration is involved. Zero-variance source
// points fall back to scale 1.
func EstimateSimilarity(src, dst []detector.Point) Transform {
	n := len(src)

	var srcCx, srcCy, dstCx, dstCy float64
	for i := 0; i < n; i++ {
		srcCx += float64(src[i].X)
		srcCy += float64(src[i].Y)
		dstCx += float64(dst[i].X)
		dstCy += float64(dst[i].Y)
	}
	srcCx /= float64(n)
	srcCy /= float64(n)
	dstCx /= float64(n)
	dstCy /= float64(n)

	// Cross-covariance S = sum over points of dst_c * src_c^T.
	var s00, s01, s10, s11 float64
	for i := 0; i < n; i++ {
		sx := float64(src[i].X) - srcCx
		sy := float64(src[i].Y) - srcCy
		dx := float64(dst[i].X) - dstCx
		dy := float64(dst[i].Y) - dstCy
		s00 += dx * sx
		s01 += dx * sy
		s10 += dy * sx
		s11 += dy * sy
	}

	theta := math.Atan2(s01-s10, s00+s11)
	cosT := math.Cos(theta)
	sinT := math.Sin(theta)

	// scale = sum(dst_c . R*src_c) / sum(|src_c|^2), the minimizer of
	// the reprojection error once the rotation is fixed.
	var num, den float64
	for i := 0; i < n; i++ {
		sx := float64(src[i].X) - srcCx
		sy := float64(src[i].Y) - srcCy
		dx := float64(dst[i].X) - dstCx
		dy := float64(dst[i].Y) - dstCy
		rx := cosT*sx - sinT*sy
		ry := sinT*sx + cosT*sy
		num += dx*rx + dy*ry
		den += sx*sx + sy*sy
	}
	scale := 1.0
	if den > 1e-6 {
		scale = num / den
	}

	a := scale * cosT
	b := -scale * sinT
	c := scale * sinT
	d := scale * cosT

	return Transform{
		A: float32(a), B: float32(b), Tx: float32(dstCx - a*srcCx - b*srcCy),
		C: float32(c), D: float32(d), Ty: float32(dstCy - c*srcCx - d*srcCy),
	}
}
