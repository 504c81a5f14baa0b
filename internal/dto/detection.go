package dto

// Detection is one detected object in pixel coordinates.
// BBox is [x1, y1, x2, y2] with x1 < x2 and y1 < y2.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

// PredictionResponse is the body of a single-image prediction.
type PredictionResponse struct {
	Detections []Detection `json:"detections"`
}

// ErrorResponse is the body of every non-streaming failure.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
