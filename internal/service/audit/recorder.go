// Package audit persists session metadata through a repository.
package audit

import (
	"sort"
	"sync"
	"time"

	"visionengine/internal/dto"
	"visionengine/internal/logger"
	"visionengine/internal/model"
	"visionengine/internal/repository"
	"visionengine/internal/stream"
)

// Recorder is a stream.Observer that writes one audit row per session.
// Storage failures are logged and never affect the stream.
type Recorder struct {
	repo   repository.SessionRepository
	logger *logger.Logger

	mu      sync.Mutex
	tallies map[string]map[string]int
}

// NewRecorder creates a Recorder.
func NewRecorder(repo repository.SessionRepository, logger *logger.Logger) *Recorder {
	return &Recorder{
		repo:    repo,
		logger:  logger,
		tallies: make(map[string]map[string]int),
	}
}

func (r *Recorder) SessionStarted(info stream.SessionInfo) {
	r.mu.Lock()
	r.tallies[info.ID] = make(map[string]int)
	r.mu.Unlock()

	err := r.repo.Insert(&model.Session{
		ID:        info.ID,
		Kind:      string(info.Kind),
		Source:    info.Source,
		StartedAt: info.StartedAt,
	})
	if err != nil {
		r.logger.Error("Failed to record session %s: %v", info.ID, err)
	}
}

func (r *Recorder) FrameProcessed(info stream.SessionInfo, inference time.Duration, detections []dto.Detection) {
	if len(detections) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tally, ok := r.tallies[info.ID]
	if !ok {
		return
	}
	for _, d := range detections {
		tally[d.Class]++
	}
}

func (r *Recorder) SessionEnded(info stream.SessionInfo, summary stream.Summary) {
	r.mu.Lock()
	tally := r.tallies[info.ID]
	delete(r.tallies, info.ID)
	r.mu.Unlock()

	var errMsg string
	if summary.Err != nil {
		errMsg = summary.Err.Error()
	}
	err := r.repo.Finish(info.ID, string(summary.Outcome), summary.Frames, errMsg, summary.EndedAt, classCounts(tally))
	if err != nil {
		r.logger.Error("Failed to finish session %s: %v", info.ID, err)
	}
}

func (r *Recorder) DeviceBusy() {}

// Recent returns the newest sessions.
func (r *Recorder) Recent(limit int) ([]model.Session, error) {
	return r.repo.GetRecent(limit)
}

// Get returns one session.
func (r *Recorder) Get(id string) (*model.Session, error) {
	return r.repo.GetByID(id)
}

func classCounts(tally map[string]int) []model.ClassCount {
	counts := make([]model.ClassCount, 0, len(tally))
	for class, n := range tally {
		counts = append(counts, model.ClassCount{Class: class, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Class < counts[j].Class })
	return counts
}
