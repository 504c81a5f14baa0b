package repository

import (
	"errors"
	"time"

	"visionengine/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// SessionRepository defines the interface for session audit operations.
type SessionRepository interface {
	// Create operations
	Insert(s *model.Session) error

	// Update operations
	Finish(id, outcome string, frames int, errMsg string, endedAt time.Time, classes []model.ClassCount) error

	// Read operations
	GetByID(id string) (*model.Session, error)
	GetRecent(limit int) ([]model.Session, error)
	CountByOutcome() (map[string]int, error)

	// Delete operations
	DeleteBefore(t time.Time) (int64, error)
}
