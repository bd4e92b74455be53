package detector

import "sort"

// nms performs Non-Maximum Suppression: faces are ranked by score and
// any face overlapping an already-kept one above iouThreshold is
// dropped. First kept wins ties.
func nms(faces []Face, iouThreshold float32) []Face {
	if len(faces) == 0 {
		return faces
	}

	sort.Slice(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	suppressed := make([]bool, len(faces))
	result := make([]Face, 0, len(faces))

	for i := range faces {
		if suppressed[i] {
			continue
		}
		result = append(result, faces[i])

		for j := i + 1; j < len(faces); j++ {
			if suppressed[j] {
				continue
			}
			if iou(faces[i].BoundingBox, faces[j].BoundingBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return result
}

// iou calculates Intersection over Union of two bounding boxes.
func iou(a, b BoundingBox) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	iw := max(x2-x1, 0)
	ih := max(y2-y1, 0)
	intersection := iw * ih

	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}
