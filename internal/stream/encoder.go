package stream

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"visionengine/internal/dto"
)

const (
	// DefaultPreviewMaxWidth bounds the width of preview frames.
	DefaultPreviewMaxWidth = 960
	// DefaultPreviewQuality is the JPEG quality of preview frames.
	DefaultPreviewQuality = 70
)

// Frame is one processed frame ready to be encoded.
type Frame struct {
	Kind        SourceKind
	Timestamp   float64 // Seconds since stream start
	Detections  []dto.Detection
	Image       image.Image // Needed only when Preview is set
	Preview     bool
	DeviceIndex int
}

// Encoder builds self-contained wire events.
type Encoder struct {
	maxWidth int
	quality  int
}

// NewEncoder creates an encoder; non-positive arguments select the defaults.
func NewEncoder(maxWidth, quality int) *Encoder {
	if maxWidth <= 0 {
		maxWidth = DefaultPreviewMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultPreviewQuality
	}
	return &Encoder{maxWidth: maxWidth, quality: quality}
}

// Encode rounds numeric fields and attaches the preview when requested.
func (e *Encoder) Encode(f Frame) (*dto.FrameEvent, error) {
	event := &dto.FrameEvent{
		T:          round(f.Timestamp, 4),
		Detections: RoundDetections(f.Detections),
	}

	if f.Kind == KindWebcam {
		index := f.DeviceIndex
		event.Source = string(KindWebcam)
		event.DeviceIndex = &index
	}

	if f.Preview && f.Image != nil {
		data, err := e.Preview(f.Image)
		if err != nil {
			return nil, fmt.Errorf("encode preview: %w", err)
		}
		event.Frame = base64.StdEncoding.EncodeToString(data)
	}

	return event, nil
}

// Preview downscales img to the configured width and encodes it as JPEG.
func (e *Encoder) Preview(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Downscale(img, e.maxWidth), &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Downscale shrinks img to maxWidth preserving the aspect ratio. Images that
// are already narrow enough are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := int(float64(b.Dy()) * float64(maxWidth) / float64(b.Dx()))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// RoundDetections returns a copy with confidence rounded to 3 and box
// coordinates to 2 decimal places, in the original order. Never nil.
func RoundDetections(in []dto.Detection) []dto.Detection {
	out := make([]dto.Detection, 0, len(in))
	for _, d := range in {
		out = append(out, dto.Detection{
			Class:      d.Class,
			Confidence: round(d.Confidence, 3),
			BBox: [4]float64{
				round(d.BBox[0], 2),
				round(d.BBox[1], 2),
				round(d.BBox[2], 2),
				round(d.BBox[3], 2),
			},
		})
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
