package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/yamake/pkg/engine"
)

// Metrics records Make outcomes in a private Prometheus registry. It
// implements engine.Observer. A nil or disabled Metrics discards everything.
type Metrics struct {
	config MetricsConfig

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	iterations    prometheus.Histogram
	nodeBuilds    *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	nodeStatus    *prometheus.GaugeVec

	registry *prometheus.Registry
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates a collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "make_runs_total",
				Help:      "Total number of completed make runs",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "make_duration_seconds",
				Help:      "Duration of make runs in seconds",
				Buckets:   buckets,
			},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "make_iterations",
				Help:      "Number of iterations a make run needed to converge",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
			},
		),
		nodeBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_builds_total",
				Help:      "Total number of node builds by kind and outcome",
			},
			[]string{"tag", "status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_build_duration_seconds",
				Help:      "Duration of node builds in seconds",
				Buckets:   buckets,
			},
			[]string{"tag"},
		),
		nodeStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_status",
				Help:      "Number of nodes per status after the latest iteration",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.runs,
		m.runDuration,
		m.iterations,
		m.nodeBuilds,
		m.buildDuration,
		m.nodeStatus,
	)

	return m
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// IterationCompleted publishes the per-status node counts.
func (m *Metrics) IterationCompleted(_ int, counts engine.StatusCounts) {
	if !m.enabled() {
		return
	}
	for _, s := range engine.AllStatuses {
		m.nodeStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// NodeBuilt records one build job.
func (m *Metrics) NodeBuilt(tag string, status engine.NodeStatus, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.nodeBuilds.WithLabelValues(tag, string(status)).Inc()
	m.buildDuration.WithLabelValues(tag).Observe(duration.Seconds())
}

// MakeCompleted records the run outcome.
func (m *Metrics) MakeCompleted(result engine.Result) {
	if !m.enabled() {
		return
	}
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(result.Duration.Seconds())
	m.iterations.Observe(float64(result.Iterations))
}

// Gatherer exposes the registry, or nil when disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.enabled() {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// StartServer serves the metrics endpoint on addr until ctx is cancelled.
// The returned channel yields the server's terminal error, if any.
func (m *Metrics) StartServer(ctx context.Context, addr string) (<-chan error, error) {
	errc := make(chan error, 1)
	if !m.enabled() {
		close(errc)
		return errc, nil
	}
	if addr == "" {
		addr = m.config.ListenAddress
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		defer close(errc)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	return errc, nil
}
