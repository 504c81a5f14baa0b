package stream

import (
	"os"
	"sync"

	"visionengine/internal/logger"
)

// Janitor owns the releasable resources of one session and frees them once,
// in order: device permit, frame source, staged files and directories.
type Janitor struct {
	mu     sync.Mutex
	permit *Permit
	source FrameSource
	paths  []string
	once   sync.Once
	logger *logger.Logger
}

// NewJanitor creates an empty janitor.
func NewJanitor(logger *logger.Logger) *Janitor {
	return &Janitor{logger: logger}
}

// HoldPermit registers the camera permit.
func (j *Janitor) HoldPermit(p *Permit) {
	j.mu.Lock()
	j.permit = p
	j.mu.Unlock()
}

// TrackSource registers the frame source handle.
func (j *Janitor) TrackSource(src FrameSource) {
	j.mu.Lock()
	j.source = src
	j.mu.Unlock()
}

// TrackPath registers a staged file or directory for removal.
func (j *Janitor) TrackPath(paths ...string) {
	j.mu.Lock()
	for _, p := range paths {
		if p != "" {
			j.paths = append(j.paths, p)
		}
	}
	j.mu.Unlock()
}

// Cleanup releases everything registered so far. Only the first call has an
// effect. Release failures are logged and swallowed.
func (j *Janitor) Cleanup() {
	j.once.Do(func() {
		j.mu.Lock()
		permit, source, paths := j.permit, j.source, j.paths
		j.mu.Unlock()

		permit.Release()

		if source != nil {
			if err := source.Close(); err != nil {
				j.logger.Warning("Failed to close frame source: %v", err)
			}
		}

		for _, p := range paths {
			if err := os.RemoveAll(p); err != nil {
				j.logger.Warning("Failed to remove staged media %s: %v", p, err)
			}
		}
	})
}
