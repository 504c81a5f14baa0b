package handler

import (
	"errors"
	"net/http"
	"strconv"

	"visionengine/internal/logger"
	"visionengine/internal/model"
	"visionengine/internal/repository"
)

const maxSessionsLimit = 500

// SessionStore reads the session audit trail.
type SessionStore interface {
	Recent(limit int) ([]model.Session, error)
	Get(id string) (*model.Session, error)
}

// ListSessionsHandler returns the most recent sessions, newest first.
func ListSessionsHandler(store SessionStore, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "session audit is disabled")
			return
		}

		limit := min(atoiDefault(r.URL.Query().Get("limit"), 50), maxSessionsLimit)
		sessions, err := store.Recent(limit)
		if err != nil {
			logger.Error("Error querying sessions from database: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// GetSessionHandler returns one session with its class counts.
func GetSessionHandler(store SessionStore, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "session audit is disabled")
			return
		}

		session, err := store.Get(r.PathValue("id"))
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			logger.Error("Error reading session: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
