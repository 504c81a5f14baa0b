package stream

import (
	"fmt"
	"math"
)

// MaxWebcamFPS is the highest accepted webcam output rate.
const MaxWebcamFPS = 30.0

// DefaultFallbackFPS is used to time video frames when the container has no rate.
const DefaultFallbackFPS = 25.0

// Options tunes one session.
type Options struct {
	MaxFPS         float64 // Webcam output cap, (0, MaxWebcamFPS]
	DeviceIndex    int     // Reported in webcam events
	IncludePreview bool
	FallbackFPS    float64 // Video timing when the source reports no rate
}

// Validate checks the options relevant for kind.
func (o Options) Validate(kind SourceKind) error {
	if kind != KindWebcam {
		return nil
	}
	if o.DeviceIndex < 0 {
		return fmt.Errorf("%w: device_index must be >= 0", ErrInvalidOptions)
	}
	if math.IsNaN(o.MaxFPS) || o.MaxFPS <= 0 || o.MaxFPS > MaxWebcamFPS {
		return fmt.Errorf("%w: max_fps must be between 0 and %g", ErrInvalidOptions, MaxWebcamFPS)
	}
	return nil
}

// frameRate picks the rate used for video timestamps.
func (o Options) frameRate(sourceFPS float64) float64 {
	if sourceFPS > 0 && !math.IsInf(sourceFPS, 0) && !math.IsNaN(sourceFPS) {
		return sourceFPS
	}
	if o.FallbackFPS > 0 {
		return o.FallbackFPS
	}
	return DefaultFallbackFPS
}
