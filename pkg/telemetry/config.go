package telemetry

import (
	"fmt"
	"net"
	"os"
	"time"
)

// Config holds the observability settings of the yamake CLI.
type Config struct {
	ServiceName    string        `json:"service_name" yaml:"service_name"`
	ServiceVersion string        `json:"service_version" yaml:"service_version"`
	Logging        LoggingConfig `json:"logging" yaml:"logging"`
	Tracing        TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics        MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `json:"output" yaml:"output"`

	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`

	// Component is attached to every entry when set.
	Component string `json:"component,omitempty" yaml:"component,omitempty"`

	// TimeFormat is rfc3339, unix or unixms.
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	// Exporter is none, stdout or otlp.
	Exporter string `json:"exporter" yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// SamplingRate is the fraction of root spans kept (0.0 to 1.0).
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate"`

	ExportTimeout time.Duration     `json:"export_timeout" yaml:"export_timeout"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Insecure      bool              `json:"insecure" yaml:"insecure"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ListenAddress is used by the watch command's metrics endpoint.
	ListenAddress string `json:"listen_address" yaml:"listen_address"`

	Path string `json:"path" yaml:"path"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace" yaml:"namespace"`

	DefaultHistogramBuckets []float64 `json:"default_histogram_buckets,omitempty" yaml:"default_histogram_buckets,omitempty"`
}

// Environment variables consulted by ApplyEnv.
const (
	EnvLogLevel        = "YAMAKE_LOG_LEVEL"
	EnvLogFormat       = "YAMAKE_LOG_FORMAT"
	EnvTracingExporter = "YAMAKE_TRACING_EXPORTER"
	EnvOTLPEndpoint    = "YAMAKE_OTLP_ENDPOINT"
)

// DefaultConfig returns console logging at info level, no tracing and an
// enabled in-process metrics registry.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "yamake",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			Endpoint:      "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "yamake",
		},
	}
}

// ApplyEnv overrides fields from YAMAKE_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvTracingExporter); v != "" {
		c.Tracing.Exporter = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		c.Tracing.Endpoint = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s (must be none, stdout or otlp)", c.Tracing.Exporter)
	}

	if c.Tracing.SamplingRate < 0.0 || c.Tracing.SamplingRate > 1.0 {
		return fmt.Errorf("tracing sampling rate must be between 0.0 and 1.0")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddress); err != nil {
			return fmt.Errorf("invalid metrics listen address: %w", err)
		}
	}

	return nil
}
