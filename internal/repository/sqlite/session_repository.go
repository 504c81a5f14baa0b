package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"visionengine/internal/model"
	"visionengine/internal/repository"
)

// SessionRepository implements repository.SessionRepository for SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert adds a new session record to the database.
func (r *SessionRepository) Insert(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO sessions (id, kind, source, started_at)
		VALUES (?, ?, ?, ?)
	`, s.ID, s.Kind, s.Source, s.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Finish records how a session ended together with its class counts, in a single transaction.
func (r *SessionRepository) Finish(id, outcome string, frames int, errMsg string, endedAt time.Time, classes []model.ClassCount) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE sessions SET outcome = ?, frames = ?, error = ?, ended_at = ?
		WHERE id = ?
	`, outcome, frames, errMsg, endedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}

	stmt, err := tx.Prepare(`
		INSERT INTO session_classes (session_id, class, count) VALUES (?, ?, ?)
		ON CONFLICT(session_id, class) DO UPDATE SET count = excluded.count
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range classes {
		if _, err := stmt.Exec(id, c.Class, c.Count); err != nil {
			return fmt.Errorf("failed to insert class count: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a session with its class counts.
func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	s, err := scanSession(r.db.Conn().QueryRow(`
		SELECT id, kind, source, outcome, frames, error, started_at, ended_at
		FROM sessions WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := r.db.Conn().Query(`
		SELECT class, count FROM session_classes
		WHERE session_id = ? ORDER BY count DESC, class
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query class counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.ClassCount
		if err := rows.Scan(&c.Class, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		s.Classes = append(s.Classes, c)
	}
	return s, rows.Err()
}

// GetRecent returns the newest sessions first.
func (r *SessionRepository) GetRecent(limit int) ([]model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, kind, source, outcome, frames, error, started_at, ended_at
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// CountByOutcome returns the number of finished sessions per outcome.
func (r *SessionRepository) CountByOutcome() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT outcome, COUNT(*) FROM sessions
		WHERE outcome != '' GROUP BY outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes sessions that ended before t. Running sessions are kept.
func (r *SessionRepository) DeleteBefore(t time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var (
		s       model.Session
		endedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Kind, &s.Source, &s.Outcome, &s.Frames, &s.Error, &s.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return &s, nil
}
