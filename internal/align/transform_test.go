package align

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facekit/internal/detector"
)

func TestEstimateIdentity(t *testing.T) {
	m := EstimateSimilarity(Template[:], Template[:])

	assert.InDelta(t, 1, m.A, 1e-6)
	assert.InDelta(t, 0, m.B, 1e-6)
	assert.InDelta(t, 0, m.Tx, 1e-4)
	assert.InDelta(t, 0, m.C, 1e-6)
	assert.InDelta(t, 1, m.D, 1e-6)
	assert.InDelta(t, 0, m.Ty, 1e-4)
}

func TestEstimateRecoversKnownSimilarity(t *testing.T) {
	// scale 2, rotation 30 degrees, translation (10, -5)
	theta := math.Pi / 6
	scale := 2.0
	want := Transform{
		A: float32(scale * math.Cos(theta)), B: float32(-scale * math.Sin(theta)), Tx: 10,
		C: float32(scale * math.Sin(theta)), D: float32(scale * math.Cos(theta)), Ty: -5,
	}

	src := Template[:]
	dst := make([]detector.Point, len(src))
	for i, p := range src {
		dst[i] = want.Apply(p)
	}

	got := EstimateSimilarity(src, dst)
	assert.InDelta(t, want.A, got.A, 1e-3)
	assert.InDelta(t, want.B, got.B, 1e-3)
	assert.InDelta(t, want.Tx, got.Tx, 1e-2)
	assert.InDelta(t, want.C, got.C, 1e-3)
	assert.InDelta(t, want.D, got.D, 1e-3)
	assert.InDelta(t, want.Ty, got.Ty, 1e-2)

	// The estimated transform reproduces the destination landmarks.
	for i, p := range src {
		q := got.Apply(p)
		assert.InDelta(t, dst[i].X, q.X, 1e-2)
		assert.InDelta(t, dst[i].Y, q.Y, 1e-2)
	}
}

func TestEstimateNoShearByConstruction(t *testing.T) {
	src := []detector.Point{{X: 10, Y: 3}, {X: 55, Y: 9}, {X: 32, Y: 40}, {X: 12, Y: 61}, {X: 58, Y: 66}}
	m := EstimateSimilarity(src, Template[:])

	// Uniform scale and rotation only: diagonal equal, off-diagonal
	// antisymmetric.
	assert.Equal(t, m.A, m.D)
	assert.Equal(t, m.B, -m.C)
}

func TestEstimateDegenerateSource(t *testing.T) {
	// All five source points coincide: no usable variance, so scale
	// defaults to 1 and the transform degrades to a pure translation.
	p := detector.Point{X: 40, Y: 40}
	src := []detector.Point{p, p, p, p, p}

	m := EstimateSimilarity(src, Template[:])

	assert.False(t, math.IsNaN(float64(m.A)))
	assert.False(t, math.IsNaN(float64(m.Tx)))
	assert.InDelta(t, 1, m.A, 1e-6)
	assert.InDelta(t, 0, m.B, 1e-6)

	// The coincident point lands on the template centroid.
	var cx, cy float32
	for _, q := range Template {
		cx += q.X / 5
		cy += q.Y / 5
	}
	got := m.Apply(p)
	assert.InDelta(t, cx, got.X, 1e-3)
	assert.InDelta(t, cy, got.Y, 1e-3)
}

func TestApply(t *testing.T) {
	m := Transform{A: 0, B: -1, Tx: 5, C: 1, D: 0, Ty: -2}
	got := m.Apply(detector.Point{X: 3, Y: 4})
	require.Equal(t, detector.Point{X: 1, Y: 1}, got)
}
