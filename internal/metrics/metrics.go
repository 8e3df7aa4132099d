// Package metrics exposes Prometheus collectors for the voice session and
// the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"havoice/internal/domain"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ModeTransitions *prometheus.CounterVec
	CurrentMode     *prometheus.GaugeVec
	BackendStarts   *prometheus.CounterVec
	TurnsTotal      *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var modes = []domain.SessionMode{
	domain.ModeIdle,
	domain.ModeWakeWordListening,
	domain.ModeCommandListening,
	domain.ModeProcessing,
	domain.ModeAnnouncing,
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "havoice"
	}

	registry := prometheus.NewRegistry()

	modeTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Session mode transitions by target mode",
		},
		[]string{"mode"},
	)

	currentMode := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_mode",
			Help:      "1 for the current session mode, 0 otherwise",
		},
		[]string{"mode"},
	)

	backendStarts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_backend_starts_total",
			Help:      "Recognition backends started by kind",
		},
		[]string{"backend"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Routed utterances by intent and result",
		},
		[]string{"intent", "success"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Session errors by kind",
		},
		[]string{"kind"},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Gateway HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	registry.MustRegister(
		modeTransitions,
		currentMode,
		backendStarts,
		turnsTotal,
		errorsTotal,
		requestsTotal,
		requestDuration,
	)

	m := &Metrics{
		registry:        registry,
		ModeTransitions: modeTransitions,
		CurrentMode:     currentMode,
		BackendStarts:   backendStarts,
		TurnsTotal:      turnsTotal,
		ErrorsTotal:     errorsTotal,
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
	}
	m.setMode(domain.ModeIdle)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ModeChanged(mode domain.SessionMode) {
	m.ModeTransitions.WithLabelValues(string(mode)).Inc()
	m.setMode(mode)
}

func (m *Metrics) setMode(current domain.SessionMode) {
	for _, mode := range modes {
		value := 0.0
		if mode == current {
			value = 1
		}
		m.CurrentMode.WithLabelValues(string(mode)).Set(value)
	}
}

func (m *Metrics) BackendStarted(kind domain.BackendKind) {
	m.BackendStarts.WithLabelValues(string(kind)).Inc()
}

// TurnFinished records one routed utterance. An empty intent means the
// classifier failed.
func (m *Metrics) TurnFinished(intent domain.Intent, success bool) {
	label := string(intent)
	if label == "" {
		label = "unknown"
	}
	m.TurnsTotal.WithLabelValues(label, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) ErrorRaised(kind domain.ErrorKind) {
	m.ErrorsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordRequest records a completed gateway request.
func (m *Metrics) RecordRequest(endpoint string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
