package engine

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxIterations bounds the fixpoint loop.
	DefaultMaxIterations = 100

	// DefaultDigestCacheSize is the number of file digests kept in memory.
	DefaultDigestCacheSize = 4096

	// DefaultReportName is the report file name inside the sandbox.
	DefaultReportName = "make-report.yml"
)

// Observer receives progress notifications from Make.
// Callbacks run on the goroutine driving Make, except NodeBuilt which may be
// called concurrently from build workers.
type Observer interface {
	IterationCompleted(iteration int, counts StatusCounts)
	NodeBuilt(tag string, status NodeStatus, duration time.Duration)
	MakeCompleted(result Result)
}

// Option configures a Graph.
type Option func(*options)

type options struct {
	workers       int
	rootPolicy    RootPolicy
	maxIterations int
	logger        zerolog.Logger
	observer      Observer
	cacheSize     int
	reportName    string
}

func defaultOptions() options {
	return options{
		workers:       runtime.NumCPU(),
		rootPolicy:    RootPolicyDeclared,
		maxIterations: DefaultMaxIterations,
		logger:        zerolog.Nop(),
		cacheSize:     DefaultDigestCacheSize,
		reportName:    DefaultReportName,
	}
}

// WithWorkers sets the number of concurrent build workers.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRootPolicy selects the root predicate.
func WithRootPolicy(p RootPolicy) Option {
	return func(o *options) {
		if p.Validate() == nil {
			o.rootPolicy = p
		}
	}
}

// WithMaxIterations bounds the number of fixpoint iterations of one Make call.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithLogger sets the logger used by the engine.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithDigestCacheSize sets the digest cache capacity. Zero disables caching.
func WithDigestCacheSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.cacheSize = n
		}
	}
}

// WithReportName overrides the report file name inside the sandbox.
func WithReportName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.reportName = name
		}
	}
}
