package dto

// FrameEvent is the wire form of one processed frame.
type FrameEvent struct {
	T           float64     `json:"t"`
	Detections  []Detection `json:"detections"`
	Source      string      `json:"source,omitempty"`
	DeviceIndex *int        `json:"device_index,omitempty"`
	Frame       string      `json:"frame,omitempty"` // base64 JPEG preview
}

// StreamEnd terminates a stream. Error is set only when the stream was aborted by a failure.
type StreamEnd struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// WebcamStatus reports whether the camera is currently streaming.
type WebcamStatus struct {
	Busy bool `json:"busy"`
}
