package stream

import (
	"context"
	"image"
	"sync"
	"time"

	"visionengine/internal/dto"
)

// fakeSource yields frames from memory. With loop set it never ends.
type fakeSource struct {
	mu       sync.Mutex
	frames   []image.Image
	fps      float64
	loop     bool
	pos      int
	readErr  error
	closed   int
	closeErr error
	onClose  func()
}

func newFakeSource(n int, fps float64) *fakeSource {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = solidImage(32, 24)
	}
	return &fakeSource{frames: frames, fps: fps}
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frames) {
		if s.loop && len(s.frames) > 0 {
			s.pos = 0
		} else if s.readErr != nil {
			return nil, s.readErr
		} else {
			return nil, ErrEndOfStream
		}
	}
	img := s.frames[s.pos]
	s.pos++
	return img, nil
}

func (s *fakeSource) FPS() float64 {
	return s.fps
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed++
	onClose := s.onClose
	s.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	return s.closeErr
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDetector returns scripted results per call. A failure is returned on
// call failAt (1-based) when err is set.
type fakeDetector struct {
	mu      sync.Mutex
	results [][]dto.Detection
	err     error
	failAt  int
	calls   int
}

func (d *fakeDetector) Detect(ctx context.Context, img image.Image) ([]dto.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil && d.calls == d.failAt {
		return nil, d.err
	}
	if len(d.results) == 0 {
		return nil, nil
	}
	return d.results[(d.calls-1)%len(d.results)], nil
}

type fakeOpener struct {
	video     FrameSource
	videoErr  error
	camera    FrameSource
	cameraErr error
	image     FrameSource
	imageErr  error
	cameras   []CameraDescriptor
}

func (o *fakeOpener) OpenVideo(path string) (FrameSource, error) {
	return o.video, o.videoErr
}

func (o *fakeOpener) OpenCamera(desc CameraDescriptor) (FrameSource, error) {
	o.cameras = append(o.cameras, desc)
	if o.cameraErr != nil {
		return nil, o.cameraErr
	}
	return o.camera, nil
}

func (o *fakeOpener) OpenImage(path string) (FrameSource, error) {
	return o.image, o.imageErr
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []SessionInfo
	frames   int
	ended    []Summary
	busyHits int
}

func (r *recordingObserver) SessionStarted(info SessionInfo) {
	r.mu.Lock()
	r.started = append(r.started, info)
	r.mu.Unlock()
}

func (r *recordingObserver) FrameProcessed(info SessionInfo, inference time.Duration, detections []dto.Detection) {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
}

func (r *recordingObserver) SessionEnded(info SessionInfo, summary Summary) {
	r.mu.Lock()
	r.ended = append(r.ended, summary)
	r.mu.Unlock()
}

func (r *recordingObserver) DeviceBusy() {
	r.mu.Lock()
	r.busyHits++
	r.mu.Unlock()
}

func (r *recordingObserver) lastSummary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ended) == 0 {
		return Summary{}
	}
	return r.ended[len(r.ended)-1]
}

// collector is a Sink that records every message.
type collector struct {
	mu       sync.Mutex
	events   []*dto.FrameEvent
	ends     []dto.StreamEnd
	received []time.Time
	onEvent  func(n int)
	err      error
}

func (c *collector) sink(v any) error {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	var n int
	switch msg := v.(type) {
	case *dto.FrameEvent:
		c.events = append(c.events, msg)
		c.received = append(c.received, time.Now())
		n = len(c.events)
	case dto.StreamEnd:
		c.ends = append(c.ends, msg)
	}
	onEvent := c.onEvent
	c.mu.Unlock()

	if onEvent != nil && n > 0 {
		onEvent(n)
	}
	return nil
}

var fire = dto.Detection{Class: "fire", Confidence: 0.91234, BBox: [4]float64{10.123, 20.456, 30.789, 40.001}}
