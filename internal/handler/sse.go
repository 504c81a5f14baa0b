package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"visionengine/internal/logger"
	"visionengine/internal/stream"
)

// writeSSE writes payload as one "data:" event.
func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// streamSSE runs session and relays its messages as server-sent events until
// the session ends or the client goes away.
func streamSSE(w http.ResponseWriter, r *http.Request, session *stream.Session, logger *logger.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		session.Close()
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := session.Run(r.Context(), func(v any) error {
		if err := writeSSE(w, v); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logger.Warning("Stream %s ended with error: %v", session.Info().ID, err)
	}
}
