package stream

import (
	"context"
	"errors"
	"image"
	"strconv"
	"strings"

	"visionengine/internal/dto"
)

var (
	// ErrEndOfStream is returned by FrameSource.Next once no more frames can be decoded.
	ErrEndOfStream = errors.New("end of stream")
	// ErrSourceUnavailable means the media handle could not be obtained or is not ready.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrDeviceBusy means another session holds the camera.
	ErrDeviceBusy = errors.New("device busy")
	// ErrInvalidOptions wraps every stream option validation failure.
	ErrInvalidOptions = errors.New("invalid stream options")
	// ErrSessionConsumed is returned when Run is called on a session that already ran.
	ErrSessionConsumed = errors.New("session already consumed")
)

// SourceKind identifies the media behind a session.
type SourceKind string

const (
	KindImage  SourceKind = "image"
	KindVideo  SourceKind = "video"
	KindWebcam SourceKind = "webcam"
)

// FrameSource yields decoded frames on demand.
//
// Next returns ErrEndOfStream on ordinary end of stream and also when the
// decoder hits corrupt data. Close must be idempotent.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	// FPS is the container frame rate, 0 when unknown or not meaningful.
	FPS() float64
	Close() error
}

// FrameCounter is implemented by sources whose container reports a frame
// count. A negative count means unknown.
type FrameCounter interface {
	FrameCount() int
}

// Opener turns descriptors into FrameSources. Failures wrap ErrSourceUnavailable.
type Opener interface {
	OpenVideo(path string) (FrameSource, error)
	OpenCamera(desc CameraDescriptor) (FrameSource, error)
	OpenImage(path string) (FrameSource, error)
}

// Detector maps one frame to its detections. Implementations may be slow.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]dto.Detection, error)
}

// CameraDescriptor selects a local device by index or a network camera by URI.
type CameraDescriptor struct {
	Index int
	URI   string
}

// ParseCameraSource resolves the configured camera source. An empty source
// selects the device at index, a numeric source is itself a device index and
// anything else is treated as a URI.
func ParseCameraSource(source string, index int) CameraDescriptor {
	source = strings.TrimSpace(source)
	if source == "" {
		return CameraDescriptor{Index: index}
	}
	if n, err := strconv.Atoi(source); err == nil && n >= 0 && isDigits(source) {
		return CameraDescriptor{Index: n}
	}
	return CameraDescriptor{Index: index, URI: source}
}

// IsURI reports whether the descriptor points at a network source.
func (d CameraDescriptor) IsURI() bool {
	return d.URI != ""
}

func (d CameraDescriptor) String() string {
	if d.IsURI() {
		return d.URI
	}
	return "device:" + strconv.Itoa(d.Index)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
