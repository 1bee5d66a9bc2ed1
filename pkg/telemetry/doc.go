// Package telemetry wires the observability stack of the yamake CLI.
//
// Three pieces are built from a single Config:
//
//  1. Structured logging with zerolog, console or JSON.
//  2. Tracing with OpenTelemetry. The provider is installed globally so the
//     spans opened by the engine ("make", "iteration", "build <path>") are
//     exported through the stdout or OTLP gRPC exporter.
//  3. Prometheus metrics in a private registry. Metrics implements
//     engine.Observer and is handed to the graph with engine.WithObserver.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ApplyEnv()
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	g := engine.NewGraph(src, sandbox,
//	    engine.WithLogger(tel.Component("engine")),
//	    engine.WithObserver(tel.Metrics),
//	)
//
// # Metrics
//
// With the default "yamake" namespace the collector exposes:
//
//	yamake_make_runs_total{result}
//	yamake_make_duration_seconds
//	yamake_make_iterations
//	yamake_node_builds_total{tag,status}
//	yamake_node_build_duration_seconds{tag}
//	yamake_node_status{status}
//
// One-shot commands write them with WriteTextfile; long-running ones serve
// them with StartServer.
//
// # Environment
//
// ApplyEnv reads YAMAKE_LOG_LEVEL, YAMAKE_LOG_FORMAT, YAMAKE_TRACING_EXPORTER
// and YAMAKE_OTLP_ENDPOINT.
package telemetry
