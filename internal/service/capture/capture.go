// Package capture opens OpenCV backed frame sources.
package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"visionengine/internal/logger"
	"visionengine/internal/stream"
)

// Opener implements stream.Opener on top of gocv.
type Opener struct {
	logger *logger.Logger
}

// NewOpener creates an Opener.
func NewOpener(logger *logger.Logger) *Opener {
	return &Opener{logger: logger}
}

// OpenVideo opens a video file.
func (o *Opener) OpenVideo(path string) (stream.FrameSource, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open video %s: %v", stream.ErrSourceUnavailable, path, err)
	}
	return o.wrap(capture, path)
}

// OpenCamera opens a local device by index, or a network camera by URI.
func (o *Opener) OpenCamera(desc stream.CameraDescriptor) (stream.FrameSource, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if desc.IsURI() {
		capture, err = gocv.OpenVideoCapture(desc.URI)
	} else {
		capture, err = openDevice(desc.Index)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open camera %s: %v", stream.ErrSourceUnavailable, desc, err)
	}
	return o.wrap(capture, desc.String())
}

// OpenImage decodes a still image into a single frame source.
func (o *Opener) OpenImage(path string) (stream.FrameSource, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("%w: cannot decode image %s", stream.ErrSourceUnavailable, path)
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: convert image %s: %v", stream.ErrSourceUnavailable, path, err)
	}
	return &stillSource{img: img}, nil
}

func (o *Opener) wrap(capture *gocv.VideoCapture, name string) (stream.FrameSource, error) {
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s is not opened", stream.ErrSourceUnavailable, name)
	}
	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	o.logger.Debug("Opened %s at %.2f fps, %.0f frames", name, fps, frames)
	return &captureSource{capture: capture, mat: gocv.NewMat(), fps: fps, frames: frames}, nil
}

// captureSource reads frames from a VideoCapture into a reused Mat.
type captureSource struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	fps     float64
	frames  float64
	closed  bool
}

func (s *captureSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, stream.ErrEndOfStream
	}
	if !s.capture.Read(&s.mat) || s.mat.Empty() {
		return nil, stream.ErrEndOfStream
	}
	img, err := s.mat.ToImage()
	if err != nil {
		// Undecodable frames end the stream like corrupt container data.
		return nil, stream.ErrEndOfStream
	}
	return img, nil
}

func (s *captureSource) FPS() float64 {
	if math.IsNaN(s.fps) || s.fps <= 0 {
		return 0
	}
	return s.fps
}

// FrameCount is the container's frame count. Live cameras report -1.
func (s *captureSource) FrameCount() int {
	if math.IsNaN(s.frames) || s.frames < 0 {
		return -1
	}
	return int(s.frames)
}

func (s *captureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	matErr := s.mat.Close()
	if err := s.capture.Close(); err != nil {
		return err
	}
	return matErr
}

// stillSource yields one decoded image.
type stillSource struct {
	mu   sync.Mutex
	img  image.Image
	done bool
}

func (s *stillSource) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, stream.ErrEndOfStream
	}
	s.done = true
	return s.img, nil
}

func (s *stillSource) FPS() float64 {
	return 0
}

func (s *stillSource) Close() error {
	s.mu.Lock()
	s.img = nil
	s.done = true
	s.mu.Unlock()
	return nil
}
