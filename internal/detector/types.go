package detector

// Point represents a 2D point in pixel coordinates.
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box.
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width.
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height.
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point.
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area.
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Landmarks represents the 5 facial landmark points.
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Points returns the landmarks in canonical order.
func (l Landmarks) Points() []Point {
	return []Point{l.LeftEye, l.RightEye, l.Nose, l.LeftMouth, l.RightMouth}
}

// AsSlice returns landmarks as a flat slice [x0,y0,x1,y1,...].
func (l Landmarks) AsSlice() []float32 {
	return []float32{
		l.LeftEye.X, l.LeftEye.Y,
		l.RightEye.X, l.RightEye.Y,
		l.Nose.X, l.Nose.Y,
		l.LeftMouth.X, l.LeftMouth.Y,
		l.RightMouth.X, l.RightMouth.Y,
	}
}

func (l *Landmarks) scale(sx, sy float32) {
	l.LeftEye.X *= sx
	l.LeftEye.Y *= sy
	l.RightEye.X *= sx
	l.RightEye.Y *= sy
	l.Nose.X *= sx
	l.Nose.Y *= sy
	l.LeftMouth.X *= sx
	l.LeftMouth.Y *= sy
	l.RightMouth.X *= sx
	l.RightMouth.Y *= sy
}

// Face is one detected face: bounding box and landmarks in original
// photo pixel coordinates, score in [0,1].
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float32
}

// Normalize converts the face geometry to 0-1 coordinates relative to
// the photo dimensions, the form the catalog stores face regions in.
func (f *Face) Normalize(width, height int) {
	sx := 1 / float32(width)
	sy := 1 / float32(height)
	f.BoundingBox.X1 *= sx
	f.BoundingBox.Y1 *= sy
	f.BoundingBox.X2 *= sx
	f.BoundingBox.Y2 *= sy
	f.Landmarks.scale(sx, sy)
}
