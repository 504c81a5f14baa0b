package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"visionengine/internal/logger"
)

// Engine opens sessions. It is shared by all requests; the camera arbiter it
// holds is the only state sessions have in common.
type Engine struct {
	opener      Opener
	detector    Detector
	arbiter     *Arbiter
	encoder     *Encoder
	observer    Observer
	logger      *logger.Logger
	fallbackFPS float64
}

// NewEngine wires an Engine. A nil observer disables notifications.
func NewEngine(opener Opener, detector Detector, arbiter *Arbiter, encoder *Encoder, observer Observer, logger *logger.Logger, fallbackFPS float64) *Engine {
	if observer == nil {
		observer = Observers(nil)
	}
	if arbiter == nil {
		arbiter = NewArbiter()
	}
	if encoder == nil {
		encoder = NewEncoder(DefaultPreviewMaxWidth, DefaultPreviewQuality)
	}
	return &Engine{
		opener:      opener,
		detector:    detector,
		arbiter:     arbiter,
		encoder:     encoder,
		observer:    observer,
		logger:      logger,
		fallbackFPS: fallbackFPS,
	}
}

// Arbiter returns the camera arbiter.
func (e *Engine) Arbiter() *Arbiter {
	return e.arbiter
}

// OpenVideo opens a video file session. The staged paths are removed when the
// session ends, or right away when the file cannot be opened.
func (e *Engine) OpenVideo(path string, opts Options, staged ...string) (*Session, error) {
	return e.openFile(KindVideo, path, opts, staged)
}

// OpenImage opens a single image as a one frame session.
func (e *Engine) OpenImage(path string, opts Options, staged ...string) (*Session, error) {
	return e.openFile(KindImage, path, opts, staged)
}

func (e *Engine) openFile(kind SourceKind, path string, opts Options, staged []string) (*Session, error) {
	janitor := NewJanitor(e.logger)
	janitor.TrackPath(staged...)

	var (
		src FrameSource
		err error
	)
	if kind == KindImage {
		src, err = e.opener.OpenImage(path)
	} else {
		src, err = e.opener.OpenVideo(path)
	}
	if err != nil {
		janitor.Cleanup()
		return nil, wrapUnavailable(err)
	}
	janitor.TrackSource(src)

	return e.newSession(kind, path, src, opts, janitor), nil
}

// OpenWebcam claims the camera and opens it. It fails fast with ErrDeviceBusy
// when another session holds the camera.
func (e *Engine) OpenWebcam(desc CameraDescriptor, opts Options) (*Session, error) {
	if err := opts.Validate(KindWebcam); err != nil {
		return nil, err
	}

	permit, err := e.arbiter.TryAcquire()
	if err != nil {
		e.observer.DeviceBusy()
		return nil, err
	}
	janitor := NewJanitor(e.logger)
	janitor.HoldPermit(permit)

	src, err := e.opener.OpenCamera(desc)
	if err != nil {
		janitor.Cleanup()
		e.logger.Warning("Camera %s could not be opened: %v", desc, err)
		return nil, wrapUnavailable(err)
	}
	janitor.TrackSource(src)

	return e.newSession(KindWebcam, desc.String(), src, opts, janitor), nil
}

func (e *Engine) newSession(kind SourceKind, source string, src FrameSource, opts Options, janitor *Janitor) *Session {
	if opts.FallbackFPS <= 0 {
		opts.FallbackFPS = e.fallbackFPS
	}
	s := &Session{
		info: SessionInfo{
			ID:        uuid.NewString(),
			Kind:      kind,
			Source:    source,
			StartedAt: time.Now(),
		},
		source:   src,
		opts:     opts,
		detector: e.detector,
		encoder:  e.encoder,
		janitor:  janitor,
		observer: e.observer,
		logger:   e.logger,
	}
	e.logger.Info("Session %s (%s) opened on %s", s.info.ID, kind, source)
	e.observer.SessionStarted(s.info)
	return s
}

func wrapUnavailable(err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}
