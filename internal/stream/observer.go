package stream

import (
	"time"

	"visionengine/internal/dto"
)

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// SessionInfo identifies a session to observers.
type SessionInfo struct {
	ID        string
	Kind      SourceKind
	Source    string
	StartedAt time.Time
}

// Summary describes a finished session.
type Summary struct {
	Outcome Outcome
	Frames  int
	EndedAt time.Time
	Err     error
}

// Observer receives session lifecycle notifications. Calls are synchronous
// and must not block for long.
type Observer interface {
	SessionStarted(info SessionInfo)
	FrameProcessed(info SessionInfo, inference time.Duration, detections []dto.Detection)
	SessionEnded(info SessionInfo, summary Summary)
	DeviceBusy()
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) SessionStarted(info SessionInfo) {
	for _, obs := range o {
		obs.SessionStarted(info)
	}
}

func (o Observers) FrameProcessed(info SessionInfo, inference time.Duration, detections []dto.Detection) {
	for _, obs := range o {
		obs.FrameProcessed(info, inference, detections)
	}
}

func (o Observers) SessionEnded(info SessionInfo, summary Summary) {
	for _, obs := range o {
		obs.SessionEnded(info, summary)
	}
}

func (o Observers) DeviceBusy() {
	for _, obs := range o {
		obs.DeviceBusy()
	}
}
