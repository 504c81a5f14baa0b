package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"

	"visionengine/internal/config"
	"visionengine/internal/logger"
	"visionengine/internal/metrics"
	"visionengine/internal/repository/sqlite"
	"visionengine/internal/route"
	"visionengine/internal/service/ai"
	"visionengine/internal/service/audit"
	"visionengine/internal/service/capture"
	"visionengine/internal/service/download"
	"visionengine/internal/service/inference"
	"visionengine/internal/stream"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	pool     *inference.Pool
	engine   *stream.Engine
	metrics  *metrics.Metrics
	db       *sqlite.DB
	recorder *audit.Recorder
}

// NewApp loads the detectors, opens the audit database and wires the engine.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	pool, err := NewInferencePool(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log, pool: pool}
	arbiter := stream.NewArbiter()
	a.metrics = metrics.New(arbiter.Busy)
	observers := stream.Observers{a.metrics}

	if cfg.DatabasePath != "" {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			pool.Stop()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.recorder = audit.NewRecorder(sqlite.NewSessionRepository(db), log)
		observers = append(observers, a.recorder)
	}

	encoder := stream.NewEncoder(cfg.PreviewMaxWidth, cfg.PreviewQuality)
	a.engine = stream.NewEngine(capture.NewOpener(log), pool, arbiter, encoder, observers, log, cfg.VideoFallbackFPS)
	return a, nil
}

// NewInferencePool loads one detector per processing worker.
func NewInferencePool(cfg *config.Config, log *logger.Logger) (*inference.Pool, error) {
	workers := max(cfg.ProcessingWorkers, 1)
	backends := make([]inference.Backend, 0, workers)
	for i := 0; i < workers; i++ {
		ds, err := ai.NewDetectorService(cfg, log)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("failed to load detector %d: %w", i, err)
		}
		backends = append(backends, ds)
	}
	return inference.NewPool(backends, log), nil
}

// Handler builds the HTTP surface.
func (a *App) Handler() http.Handler {
	deps := route.Dependencies{
		Engine:  a.engine,
		Fetcher: download.NewYouTube(a.config, a.logger),
		Metrics: a.metrics.Handler(),
	}
	if a.recorder != nil {
		deps.Sessions = a.recorder
	}
	return route.SetupRoutes(deps, a.config, a.logger)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.printBanner()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		// Streams ignore Shutdown; force them closed so their sessions clean up.
		a.logger.Warning("Graceful shutdown timed out: %v", err)
		return server.Close()
	}
	return nil
}

// Close stops the workers and closes the database.
func (a *App) Close() {
	a.pool.Stop()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database: %v", err)
		}
	}
}

func (a *App) printBanner() {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Faint)

	title.Println("Danger Detection Vision Engine")
	fmt.Printf("%s http://localhost:%d\n", label.Sprint("URL:    "), a.config.Port)
	fmt.Printf("%s %s (%d worker(s))\n", label.Sprint("Model:  "), a.config.ModelPath, a.pool.Size())
	fmt.Printf("%s %v\n", label.Sprint("Danger: "), a.config.DangerClasses)
	camera := stream.ParseCameraSource(a.config.CameraSource, a.config.CameraDeviceIndex)
	fmt.Printf("%s %s at most %g fps\n", label.Sprint("Camera: "), camera, a.config.CameraMaxFPS)
	if a.db != nil {
		fmt.Printf("%s %s\n", label.Sprint("Audit:  "), a.config.DatabasePath)
	}
}
