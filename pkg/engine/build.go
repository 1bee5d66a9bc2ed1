package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// buildJob is one build action of a pass. Everything a worker reads is
// captured here before dispatch.
type buildJob struct {
	id       NodeID
	node     Node
	target   string
	preds    []Node
	previous string
	hasPrev  bool
}

type buildResult struct {
	status   NodeStatus
	duration time.Duration
}

// buildStage runs one build pass: the ready set is chosen serially, built in
// parallel, and merged back single-threaded.
func (g *Graph) buildStage(ctx context.Context) {
	var jobs []buildJob
	var settled []NodeID

	for i := range g.nodes {
		id := NodeID(i)
		st := g.status[id]
		if (st != StatusInitial && st != StatusScanIncomplete) || g.IsRoot(id) {
			continue
		}
		if g.hasFailedPredecessor(id) {
			g.status[id] = StatusAncestorFailed
			continue
		}
		if st != StatusInitial {
			continue
		}
		ready, unchanged := g.readiness(id)
		if !ready {
			continue
		}

		target := g.nodes[id].Path()
		prev, hasPrev := g.previous[target]
		if unchanged && hasPrev {
			if current, ok := g.digests.digest(g.sandboxPath(target)); ok && current == prev {
				g.status[id] = StatusBuildNotRequired
				settled = append(settled, id)
				continue
			}
		}

		jobs = append(jobs, buildJob{
			id:       id,
			node:     g.nodes[id],
			target:   target,
			preds:    g.predecessorNodes(id),
			previous: prev,
			hasPrev:  hasPrev,
		})
	}

	for _, job := range jobs {
		g.assertBuildable(job.id)
		g.status[job.id] = StatusRunning
	}

	results := g.runJobs(ctx, jobs)

	for i, job := range jobs {
		g.status[job.id] = results[i].status
	}
	for _, job := range jobs {
		if g.status[job.id] == StatusBuildFailed {
			g.propagateFailure(job.id)
			continue
		}
		settled = append(settled, job.id)
	}

	for _, id := range settled {
		if g.status[id].IsSuccess() {
			g.expandNode(ctx, id)
		}
	}
}

func (g *Graph) hasFailedPredecessor(id NodeID) bool {
	for _, e := range g.incoming[id] {
		if g.status[e.from].IsFailure() {
			return true
		}
	}
	return false
}

// readiness reports whether every predecessor succeeded, and whether all of
// them are unchanged since the previous run.
func (g *Graph) readiness(id NodeID) (ready, unchanged bool) {
	unchanged = true
	for _, e := range g.incoming[id] {
		st := g.status[e.from]
		if !st.IsSuccess() {
			return false, false
		}
		if !st.IsUnchanged() {
			unchanged = false
		}
	}
	return true, unchanged
}

func (g *Graph) assertBuildable(id NodeID) {
	for _, e := range g.incoming[id] {
		if st := g.status[e.from]; !st.IsSuccess() {
			panic(NewInternalError("build dispatched with a predecessor not in a success status").
				WithPath(g.nodes[id].Path()).
				WithOperation("build").
				WithDetail("predecessor", g.nodes[e.from].Path()).
				WithDetail("status", string(st)))
		}
	}
}

// runJobs executes jobs on a bounded worker pool. Each worker writes only its
// own result slot.
func (g *Graph) runJobs(ctx context.Context, jobs []buildJob) []buildResult {
	results := make([]buildResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workerCount := g.opts.workers
	if len(jobs) < workerCount {
		workerCount = len(jobs)
	}

	workQueue := make(chan int, len(jobs))
	for i := range jobs {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workQueue {
				results[i] = g.buildNode(ctx, jobs[i])
			}
		}()
	}
	wg.Wait()

	return results
}

func (g *Graph) buildNode(ctx context.Context, job buildJob) (res buildResult) {
	ctx, span := tracer.Start(ctx, "build "+job.target, trace.WithAttributes(
		attribute.String("yamake.node.path", job.target),
		attribute.String("yamake.node.tag", job.node.Tag()),
	))
	start := time.Now()
	logger := g.log.With().Str("path", job.target).Str("tag", job.node.Tag()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("panic", fmt.Sprint(r)).Msg("Build action panicked")
			res.status = StatusBuildFailed
		}
		res.duration = time.Since(start)
		span.SetAttributes(attribute.String("yamake.node.status", string(res.status)))
		if res.status == StatusBuildFailed {
			span.SetStatus(codes.Error, "build failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		if g.opts.observer != nil {
			g.opts.observer.NodeBuilt(job.node.Tag(), res.status, res.duration)
		}
	}()

	logger.Debug().Msg("Building")
	if !job.node.Build(logger.WithContext(ctx), g.sandbox, job.preds) {
		logger.Warn().Msg("Build action failed")
		return buildResult{status: StatusBuildFailed}
	}

	digest, ok := g.digests.digest(g.sandboxPath(job.target))
	if !ok {
		logger.Warn().Msg("Build reported success but produced no output")
		return buildResult{status: StatusBuildFailed}
	}
	if job.hasPrev && job.previous == digest {
		return buildResult{status: StatusBuildNotChanged}
	}
	logger.Info().Msg("Built")
	return buildResult{status: StatusBuildSuccess}
}

// propagateFailure marks every pending dependent reachable from id as
// AncestorFailed, breadth-first.
func (g *Graph) propagateFailure(id NodeID) {
	queue := append([]NodeID(nil), g.outgoing[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.status[cur].IsTerminal() {
			continue
		}
		g.status[cur] = StatusAncestorFailed
		queue = append(queue, g.outgoing[cur]...)
	}
}
