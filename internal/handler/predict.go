package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"visionengine/internal/config"
	"visionengine/internal/dto"
	"visionengine/internal/logger"
	"visionengine/internal/service/download"
	"visionengine/internal/stream"
)

// Fetcher downloads a remote video into a temporary directory.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*download.Result, error)
}

// PredictImageHandler detects dangers on one uploaded image.
func PredictImageHandler(engine *stream.Engine, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upload, err := stageUpload(w, r, cfg.TempDirectory, cfg.MaxUploadBytes, imageUpload)
		if err != nil {
			writeUploadError(w, err)
			return
		}

		session, err := engine.OpenImage(upload.Path, stream.Options{}, upload.Path)
		if err != nil {
			logger.Warning("Unreadable image upload %q: %v", upload.Filename, err)
			writeError(w, http.StatusUnprocessableEntity, "the image could not be decoded")
			return
		}

		detections := []dto.Detection{}
		err = session.Run(r.Context(), func(v any) error {
			if event, ok := v.(*dto.FrameEvent); ok {
				detections = event.Detections
			}
			return nil
		})
		if err != nil {
			logger.Error("Image detection failed: %v", err)
			writeError(w, http.StatusInternalServerError, "detection failed")
			return
		}

		writeJSON(w, http.StatusOK, dto.PredictionResponse{Detections: detections})
	}
}

// PredictVideoHandler streams per frame detections of an uploaded video.
func PredictVideoHandler(engine *stream.Engine, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upload, err := stageUpload(w, r, cfg.TempDirectory, cfg.MaxUploadBytes, videoUpload)
		if err != nil {
			writeUploadError(w, err)
			return
		}
		logger.Info("Video upload %q staged (%d KB)", upload.Filename, upload.Size/1024)

		session, err := engine.OpenVideo(upload.Path, stream.Options{}, upload.Path)
		if err != nil {
			logger.Warning("Unreadable video upload %q: %v", upload.Filename, err)
			writeError(w, http.StatusUnprocessableEntity, "the video could not be opened")
			return
		}

		streamSSE(w, r, session, logger)
	}
}

type youtubeRequest struct {
	URL string `json:"url"`
}

// PredictYouTubeHandler downloads a YouTube video and streams its detections.
func PredictYouTubeHandler(engine *stream.Engine, fetcher Fetcher, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req youtubeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
			return
		}
		if !download.ValidURL(req.URL) {
			writeError(w, http.StatusUnprocessableEntity, "invalid YouTube URL")
			return
		}

		result, err := fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			logger.Error("YouTube download of %s failed: %v", req.URL, err)
			if errors.Is(err, download.ErrInvalidURL) {
				writeError(w, http.StatusUnprocessableEntity, "invalid YouTube URL")
				return
			}
			writeError(w, http.StatusBadGateway, "download failed: "+err.Error())
			return
		}

		session, err := engine.OpenVideo(result.Path, stream.Options{}, result.Dir)
		if err != nil {
			logger.Error("Downloaded file %s is not a readable video: %v", result.Path, err)
			writeError(w, http.StatusBadGateway, "the downloaded file is not a valid video or is corrupt")
			return
		}
		if n, ok := session.FrameCount(); ok && n == 0 {
			session.Close()
			logger.Error("Downloaded file %s has no frames", result.Path)
			writeError(w, http.StatusBadGateway, "the downloaded file is not a valid video or is corrupt")
			return
		}

		streamSSE(w, r, session, logger)
	}
}

// PredictWebcamHandler streams detections from the configured camera.
func PredictWebcamHandler(engine *stream.Engine, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := openWebcam(engine, cfg, r)
		if err != nil {
			writeWebcamError(w, err)
			return
		}
		streamSSE(w, r, session, logger)
	}
}

// WebcamStatusHandler reports whether the camera is claimed.
func WebcamStatusHandler(engine *stream.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.WebcamStatus{Busy: engine.Arbiter().Busy()})
	}
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// openWebcam parses the webcam query and claims the camera.
func openWebcam(engine *stream.Engine, cfg *config.Config, r *http.Request) (*stream.Session, error) {
	opts, err := webcamOptions(cfg, r)
	if err != nil {
		return nil, err
	}
	desc := stream.ParseCameraSource(cfg.CameraSource, opts.DeviceIndex)
	return engine.OpenWebcam(desc, opts)
}

func webcamOptions(cfg *config.Config, r *http.Request) (stream.Options, error) {
	q := r.URL.Query()
	opts := stream.Options{
		DeviceIndex:    cfg.CameraDeviceIndex,
		MaxFPS:         cfg.CameraMaxFPS,
		IncludePreview: true,
	}

	if v := q.Get("device_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, invalidParam("device_index must be an integer")
		}
		opts.DeviceIndex = n
	}
	if v := q.Get("max_fps"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, invalidParam("max_fps must be a number")
		}
		opts.MaxFPS = f
	}
	for _, name := range []string{"include_frame", "include_preview"} {
		if v := q.Get(name); v != "" {
			b, err := parseBool(v)
			if err != nil {
				return opts, invalidParam(name + " must be a boolean")
			}
			opts.IncludePreview = b
		}
	}
	return opts, opts.Validate(stream.KindWebcam)
}

func invalidParam(msg string) error {
	return &paramError{msg: msg}
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }
func (e *paramError) Unwrap() error { return stream.ErrInvalidOptions }

// parseBool also accepts the yes/no and on/off spellings browsers send.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}
