package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"visionengine/internal/dto"
	"visionengine/internal/stream"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {"detail": ...}.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, dto.ErrorResponse{Detail: detail})
}

// writeUploadError maps staging failures to their status codes.
func writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
	case errors.Is(err, errUnsupportedImage):
		writeError(w, http.StatusUnsupportedMediaType, "only images are accepted")
	case errors.Is(err, errUnsupportedVideo):
		writeError(w, http.StatusUnsupportedMediaType, "only videos are accepted")
	case errors.Is(err, errMissingFile), errors.Is(err, errMalformedUpload):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "could not store upload")
	}
}

// writeWebcamError maps webcam open failures to their status codes.
func writeWebcamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrInvalidOptions):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, stream.ErrDeviceBusy):
		writeError(w, http.StatusConflict, "the webcam is already in use")
	case errors.Is(err, stream.ErrSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable,
			"could not open the camera source; check permissions, whether another application holds it, or CAMERA_SOURCE/CAMERA_DEVICE_INDEX")
	default:
		writeError(w, http.StatusInternalServerError, "could not start the webcam session")
	}
}
