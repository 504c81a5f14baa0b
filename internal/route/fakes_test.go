package route

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"

	"visionengine/internal/dto"
	"visionengine/internal/model"
	"visionengine/internal/repository"
	"visionengine/internal/service/download"
	"visionengine/internal/stream"
)

// memSource yields n small frames, or frames forever when loop is set.
type memSource struct {
	mu     sync.Mutex
	n      int
	loop   bool
	served int
	closed bool
}

func (s *memSource) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (!s.loop && s.served >= s.n) {
		return nil, stream.ErrEndOfStream
	}
	s.served++
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *memSource) FPS() float64 { return 10 }

func (s *memSource) FrameCount() int {
	if s.loop {
		return -1
	}
	return s.n
}

func (s *memSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// fileOpener reads staged files. A video file containing "frames:N" has N
// frames; any other content is unreadable. Images are readable unless they
// contain "corrupt".
type fileOpener struct {
	cameraErr error
	opened    []string
}

func (o *fileOpener) OpenVideo(path string) (stream.FrameSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stream.ErrSourceUnavailable, err)
	}
	o.opened = append(o.opened, path)
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(string(data)), "frames:"))
	if err != nil || !bytes.HasPrefix(data, []byte("frames:")) {
		return nil, fmt.Errorf("%w: not a video", stream.ErrSourceUnavailable)
	}
	return &memSource{n: n}, nil
}

func (o *fileOpener) OpenCamera(desc stream.CameraDescriptor) (stream.FrameSource, error) {
	if o.cameraErr != nil {
		return nil, o.cameraErr
	}
	return &memSource{loop: true}, nil
}

func (o *fileOpener) OpenImage(path string) (stream.FrameSource, error) {
	data, err := os.ReadFile(path)
	if err != nil || bytes.Contains(data, []byte("corrupt")) {
		return nil, stream.ErrSourceUnavailable
	}
	return &memSource{n: 1}, nil
}

type fireDetector struct{}

func (fireDetector) Detect(ctx context.Context, img image.Image) ([]dto.Detection, error) {
	return []dto.Detection{{Class: "fire", Confidence: 0.87654, BBox: [4]float64{1.234, 2.346, 30.5, 40.25}}}, nil
}

// stubFetcher writes a fake video into dir.
type stubFetcher struct {
	dir     string
	content string
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*download.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	dir, err := os.MkdirTemp(f.dir, "yt-")
	if err != nil {
		return nil, err
	}
	path := dir + "/video.mp4"
	if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
		return nil, err
	}
	return &download.Result{Dir: dir, Path: path}, nil
}

type memStore struct {
	sessions []model.Session
}

func (m *memStore) Recent(limit int) ([]model.Session, error) {
	if limit < len(m.sessions) {
		return m.sessions[:limit], nil
	}
	return m.sessions, nil
}

func (m *memStore) Get(id string) (*model.Session, error) {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return &m.sessions[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

var errDownload = fmt.Errorf("%w: ERROR: Video unavailable", download.ErrDownloadFailed)
