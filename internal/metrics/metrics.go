package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visionengine/internal/dto"
	"visionengine/internal/stream"
)

// Metrics holds all application metrics. It observes every session.
type Metrics struct {
	// Plain counters, also exported to Prometheus
	FramesProcessed atomic.Uint64
	DeviceBusyHits  atomic.Uint64
	ActiveSessions  atomic.Int64

	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	frames          *prometheus.CounterVec
	detections      *prometheus.CounterVec
	inference       prometheus.Histogram

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors.
// busy reports whether the camera is currently claimed; it may be nil.
func New(busy func() bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics(busy)
	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics(busy func() bool) {
	m.sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_sessions_started_total",
		Help: "Sessions opened per source kind",
	}, []string{"kind"})

	m.sessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_sessions_ended_total",
		Help: "Sessions ended per source kind and outcome",
	}, []string{"kind", "outcome"})

	m.frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_frames_processed_total",
		Help: "Frames emitted per source kind",
	}, []string{"kind"})

	m.detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_detections_total",
		Help: "Danger detections reported per class",
	}, []string{"class"})

	m.inference = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vision_inference_seconds",
		Help:    "Time spent detecting one frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	m.registry.MustRegister(m.sessionsStarted, m.sessionsEnded, m.frames, m.detections, m.inference)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_sessions_active",
			Help: "Sessions currently streaming",
		},
		func() float64 { return float64(m.ActiveSessions.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_webcam_busy_rejections_total",
			Help: "Webcam requests rejected because the camera was in use",
		},
		func() float64 { return float64(m.DeviceBusyHits.Load()) },
	))

	if busy != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "vision_webcam_busy",
				Help: "Camera claimed (0=free, 1=busy)",
			},
			func() float64 {
				if busy() {
					return 1
				}
				return 0
			},
		))
	}
}

func (m *Metrics) SessionStarted(info stream.SessionInfo) {
	m.ActiveSessions.Add(1)
	m.sessionsStarted.WithLabelValues(string(info.Kind)).Inc()
}

func (m *Metrics) FrameProcessed(info stream.SessionInfo, inference time.Duration, detections []dto.Detection) {
	m.FramesProcessed.Add(1)
	m.frames.WithLabelValues(string(info.Kind)).Inc()
	m.inference.Observe(inference.Seconds())
	for _, d := range detections {
		m.detections.WithLabelValues(d.Class).Inc()
	}
}

func (m *Metrics) SessionEnded(info stream.SessionInfo, summary stream.Summary) {
	m.ActiveSessions.Add(-1)
	m.sessionsEnded.WithLabelValues(string(info.Kind), string(summary.Outcome)).Inc()
}

func (m *Metrics) DeviceBusy() {
	m.DeviceBusyHits.Add(1)
}

// Registry exposes the collectors, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
