// Package decode turns raw detection network output into detections in
// source image coordinates. It has no OpenCV dependency.
package decode

import (
	"fmt"
	"sort"

	"visionengine/internal/dto"
)

// Candidate is a raw box before filtering. Coordinates are corners in source
// image pixels.
type Candidate struct {
	ClassID    int
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

// Geometry relates network input to the source frame.
type Geometry struct {
	InputSize   int // Square network input side in pixels
	ImageWidth  int
	ImageHeight int
}

// YOLO decodes a YOLOv8 style tensor of shape [1, 4+C, N]: per anchor the box
// centre and size in input pixels followed by C class scores.
func YOLO(data []float32, shape []int, g Geometry, threshold float64) ([]Candidate, error) {
	if len(shape) != 3 || shape[0] != 1 || shape[1] <= 4 {
		return nil, fmt.Errorf("unexpected yolo output shape %v", shape)
	}
	rows, anchors := shape[1], shape[2]
	if len(data) < rows*anchors {
		return nil, fmt.Errorf("yolo output has %d values, want %d", len(data), rows*anchors)
	}
	if g.InputSize <= 0 {
		return nil, fmt.Errorf("invalid input size %d", g.InputSize)
	}

	scaleX := float64(g.ImageWidth) / float64(g.InputSize)
	scaleY := float64(g.ImageHeight) / float64(g.InputSize)

	var out []Candidate
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if score := data[c*anchors+i]; score > bestScore {
				best, bestScore = c-4, score
			}
		}
		if best < 0 || float64(bestScore) < threshold {
			continue
		}

		cx := float64(data[i]) * scaleX
		cy := float64(data[anchors+i]) * scaleY
		w := float64(data[2*anchors+i]) * scaleX
		h := float64(data[3*anchors+i]) * scaleY
		out = append(out, Candidate{
			ClassID:    best,
			Confidence: float64(bestScore),
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
		})
	}
	return out, nil
}

// SSD decodes a detection output of shape [1, 1, N, 7] where every row is
// [batch, class, confidence, x1, y1, x2, y2] with normalized corners.
func SSD(data []float32, shape []int, g Geometry, threshold float64) ([]Candidate, error) {
	if len(shape) != 4 || shape[3] != 7 {
		return nil, fmt.Errorf("unexpected ssd output shape %v", shape)
	}
	rows := shape[2]
	if len(data) < rows*7 {
		return nil, fmt.Errorf("ssd output has %d values, want %d", len(data), rows*7)
	}

	w, h := float64(g.ImageWidth), float64(g.ImageHeight)
	var out []Candidate
	for i := 0; i < rows; i++ {
		row := data[i*7 : i*7+7]
		confidence := float64(row[2])
		if confidence < threshold {
			continue
		}
		out = append(out, Candidate{
			ClassID:    int(row[1]),
			Confidence: confidence,
			X1:         float64(row[3]) * w,
			Y1:         float64(row[4]) * h,
			X2:         float64(row[5]) * w,
			Y2:         float64(row[6]) * h,
		})
	}
	return out, nil
}

// Decode picks the decoder matching the output shape.
func Decode(data []float32, shape []int, g Geometry, threshold float64) ([]Candidate, error) {
	if len(shape) == 4 && shape[3] == 7 {
		return SSD(data, shape, g, threshold)
	}
	return YOLO(data, shape, g, threshold)
}

// NMS suppresses overlapping boxes of the same class, keeping the most
// confident. The result is sorted by descending confidence.
func NMS(in []Candidate, iouThreshold float64) []Candidate {
	sorted := make([]Candidate, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == c.ClassID && IoU(k, c) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

// IoU is the intersection over union of two boxes.
func IoU(a, b Candidate) float64 {
	ix := min(a.X2, b.X2) - max(a.X1, b.X1)
	iy := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(c Candidate) float64 {
	return (c.X2 - c.X1) * (c.Y2 - c.Y1)
}

// Labeler maps class ids to names and keeps only danger classes.
type Labeler struct {
	classes []string
	danger  map[string]struct{}
}

// NewLabeler builds a Labeler. An empty danger list keeps every class.
func NewLabeler(classes, danger []string) *Labeler {
	l := &Labeler{classes: classes}
	if len(danger) > 0 {
		l.danger = make(map[string]struct{}, len(danger))
		for _, name := range danger {
			l.danger[name] = struct{}{}
		}
	}
	return l
}

// Name returns the class name for id, or "class_<id>" for unknown ids.
func (l *Labeler) Name(id int) string {
	if id >= 0 && id < len(l.classes) {
		return l.classes[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// IsDanger reports whether name is reported to clients.
func (l *Labeler) IsDanger(name string) bool {
	if l.danger == nil {
		return true
	}
	_, ok := l.danger[name]
	return ok
}

// Finalize labels candidates, drops non danger classes, clamps boxes to the
// image and drops boxes that collapse to nothing.
func (l *Labeler) Finalize(in []Candidate, width, height int) []dto.Detection {
	out := make([]dto.Detection, 0, len(in))
	maxX, maxY := float64(width), float64(height)
	for _, c := range in {
		name := l.Name(c.ClassID)
		if !l.IsDanger(name) {
			continue
		}
		x1, y1 := clamp(c.X1, maxX), clamp(c.Y1, maxY)
		x2, y2 := clamp(c.X2, maxX), clamp(c.Y2, maxY)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		out = append(out, dto.Detection{
			Class:      name,
			Confidence: c.Confidence,
			BBox:       [4]float64{x1, y1, x2, y2},
		})
	}
	return out
}

func clamp(v, upper float64) float64 {
	return max(0, min(v, upper))
}
