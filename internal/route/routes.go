package route

import (
	"net/http"

	"visionengine/internal/config"
	"visionengine/internal/handler"
	"visionengine/internal/logger"
	"visionengine/internal/middleware"
	"visionengine/internal/stream"
)

// Dependencies are the services the HTTP surface needs. Sessions and
// Metrics may be nil.
type Dependencies struct {
	Engine   *stream.Engine
	Fetcher  handler.Fetcher
	Sessions handler.SessionStore
	Metrics  http.Handler
}

// SetupRoutes registers the detection API, the session audit endpoints, logs
// and metrics, and wraps the mux with CORS and request logging.
func SetupRoutes(deps Dependencies, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthHandler)

	// Detection endpoints
	mux.HandleFunc("POST /predict", handler.PredictImageHandler(deps.Engine, cfg, logger))
	mux.HandleFunc("POST /predict/video", handler.PredictVideoHandler(deps.Engine, cfg, logger))
	mux.HandleFunc("POST /predict/youtube", handler.PredictYouTubeHandler(deps.Engine, deps.Fetcher, logger))
	mux.HandleFunc("GET /predict/webcam", handler.PredictWebcamHandler(deps.Engine, cfg, logger))
	mux.HandleFunc("GET /predict/webcam/ws", handler.WebcamWebsocketHandler(deps.Engine, cfg, logger))

	// API endpoints
	mux.HandleFunc("GET /api/webcam/status", handler.WebcamStatusHandler(deps.Engine))
	mux.HandleFunc("GET /api/sessions", handler.ListSessionsHandler(deps.Sessions, logger))
	mux.HandleFunc("GET /api/sessions/{id}", handler.GetSessionHandler(deps.Sessions, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return middleware.CORS(middleware.Logging(logger)(mux))
}
