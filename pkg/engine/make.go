package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/openfroyo/yamake/pkg/engine")

// Make drives mount, expand, scan and build until the whole-graph digest
// stops changing, then persists the report. It returns false if any node
// failed, if the loop hit the iteration cap, or if nodes were left unbuilt.
func (g *Graph) Make(ctx context.Context) bool {
	runID := uuid.New().String()
	g.runStart = time.Now()
	log := g.log.With().Str("run_id", runID).Logger()

	ctx, span := tracer.Start(ctx, "make", trace.WithAttributes(
		attribute.String("yamake.run_id", runID),
		attribute.String("yamake.sandbox", g.sandbox),
	))
	defer span.End()

	g.loadPrevious()
	for i := range g.nodes {
		g.status[NodeID(i)] = StatusInitial
	}
	g.checkInvariants("reset")

	log.Info().
		Str("source", g.srcDir).
		Str("sandbox", g.sandbox).
		Int("nodes", len(g.nodes)).
		Int("previous_digests", len(g.previous)).
		Msg("Starting make")

	converged := false
	iterations := 0
	for iterations < g.opts.maxIterations {
		iterations++
		if g.iterate(ctx, iterations) {
			converged = true
			break
		}
	}

	counts := g.Summary()
	result := Result{
		RunID:      runID,
		Converged:  converged,
		Iterations: iterations,
		StartedAt:  g.runStart,
		Counts:     counts,
	}
	for _, id := range g.Nodes() {
		if st := g.status[id]; st == StatusInitial || st == StatusScanIncomplete {
			result.Stalled = append(result.Stalled, g.nodes[id].Path())
			log.Warn().Str("path", g.nodes[id].Path()).Str("status", string(st)).Msg("Node left unbuilt at fixpoint")
		}
	}
	if !converged {
		log.Error().Int("iterations", iterations).Msg("No fixpoint reached within the iteration limit")
	}
	result.Success = converged && counts.Failures() == 0 && len(result.Stalled) == 0

	report := g.buildReport(runID)
	if err := report.Save(g.ReportPath()); err != nil {
		log.Error().Err(err).Str("report", g.ReportPath()).Msg("Failed to save make report")
	}
	g.lastReport = report

	result.Duration = time.Since(g.runStart)
	g.lastResult = &result
	if g.opts.observer != nil {
		g.opts.observer.MakeCompleted(result)
	}

	span.SetAttributes(
		attribute.Int("yamake.iterations", iterations),
		attribute.Bool("yamake.success", result.Success),
	)
	if result.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "make failed")
	}

	log.Info().
		Bool("success", result.Success).
		Int("iterations", iterations).
		Dur("duration", result.Duration).
		Object("statuses", counts).
		Msg("Make finished")
	return result.Success
}

// iterate runs one fixpoint iteration and reports whether it changed nothing.
func (g *Graph) iterate(ctx context.Context, iteration int) bool {
	ctx, span := tracer.Start(ctx, "iteration", trace.WithAttributes(
		attribute.Int("yamake.iteration", iteration),
	))
	defer span.End()

	before := g.graphDigest()

	g.mountStage()
	g.checkInvariants("mount")

	for id, st := range g.status {
		if st == StatusScanIncomplete {
			g.status[id] = StatusInitial
		}
	}

	g.expandStage(ctx)
	g.checkInvariants("expand")

	g.scanStage(ctx)
	g.checkInvariants("scan")

	g.buildStage(ctx)
	g.checkInvariants("build")

	counts := g.Summary()
	g.log.Info().Int("iteration", iteration).Object("statuses", counts).Msg("Iteration complete")
	if g.opts.observer != nil {
		g.opts.observer.IterationCompleted(iteration, counts)
	}

	return g.graphDigest() == before
}

// loadPrevious reads the digests recorded by the last run.
func (g *Graph) loadPrevious() {
	g.previous = make(map[string]string)
	report, err := LoadReport(g.ReportPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.log.Warn().Err(err).Msg("Ignoring unreadable make report")
		}
		return
	}
	g.previous = report.Digests()
}
