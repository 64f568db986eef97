package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the wizard's Prometheus collectors on a private registry.
type Metrics struct {
	config MetricsConfig

	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them.
func NewMetrics(cfg MetricsConfig) *Metrics {
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "steps_total",
				Help:      "Step attempts by outcome",
			},
			[]string{"step", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step attempts in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_requests_total",
				Help:      "Provider API requests by HTTP status; 0 means no response",
			},
			[]string{"provider", "status"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Provider API request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
	}

	m.registry.MustRegister(
		m.stepsTotal,
		m.stepDuration,
		m.providerRequests,
		m.providerDuration,
	)
	return m
}

// Registry exposes the registry, e.g. for the compute SDK's own instrumentation.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStep records one finished step attempt.
func (m *Metrics) ObserveStep(step, outcome string, duration time.Duration) {
	m.stepsTotal.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// ObserveRequest implements rest.Observer.
func (m *Metrics) ObserveRequest(provider string, status int, elapsed time.Duration) {
	m.providerRequests.WithLabelValues(provider, strconv.Itoa(status)).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// WriteTextfile writes the metrics in text exposition format, for the node
// exporter textfile collector. It is a no-op without a configured path.
func (m *Metrics) WriteTextfile() error {
	if m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
}
