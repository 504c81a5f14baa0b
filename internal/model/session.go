package model

import "time"

// Session is the audit record of one streaming request. No frame data is stored.
type Session struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Source    string       `json:"source"`
	Outcome   string       `json:"outcome,omitempty"`
	Frames    int          `json:"frames"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Classes   []ClassCount `json:"classes,omitempty"`
}

// ClassCount is how many detections of one class a session produced.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}
