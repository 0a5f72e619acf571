package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/khanhnv2901/cybersafe/internal/checker"
	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/scoring"
	"github.com/khanhnv2901/cybersafe/internal/telemetry"
)

// Orchestrator runs a probe set concurrently and assembles the scan result
type Orchestrator struct {
	scorer  *scoring.Scorer
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMetrics records per-probe metrics.
func WithMetrics(m *telemetry.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer wraps every probe in a span.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.SugaredLogger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a new scan orchestrator
func NewOrchestrator(scorer *scoring.Scorer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		scorer: scorer,
		tracer: noop.NewTracerProvider().Tracer("cybersafe"),
		logger: zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every probe against target and waits for all of them. A
// probe that panics yields a failed ProbeResult instead of aborting the
// scan; no probe can cancel another.
func (o *Orchestrator) Run(ctx context.Context, target string, probes []checker.Probe) scan.ScanResult {
	results := make([]scan.ProbeResult, len(probes))

	var wg conc.WaitGroup
	for i, p := range probes {
		wg.Go(func() {
			results[i] = o.runProbe(ctx, target, p)
		})
	}
	wg.Wait()

	out := scan.ScanResult{Probes: make(map[scan.ProbeName]scan.ProbeResult, len(probes))}
	for i, p := range probes {
		out.Probes[p.Name()] = results[i]
	}
	out.OverallScore = o.scorer.Calculate(out)
	out.Timestamp = o.now().UTC()
	return out
}

func (o *Orchestrator) runProbe(ctx context.Context, target string, p checker.Probe) scan.ProbeResult {
	name := p.Name()
	ctx, span := o.tracer.Start(ctx, "probe."+string(name),
		trace.WithAttributes(attribute.String("probe.name", string(name))))
	defer span.End()

	start := time.Now()
	var result scan.ProbeResult
	if recovered := panics.Try(func() { result = p.Probe(ctx, target) }); recovered != nil {
		o.logger.Errorw("probe panicked", "probe", name, "panic", recovered.Value)
		result = scan.Failed(fmt.Sprintf("probe panicked: %v", recovered.Value))
	}
	result = result.Normalize()
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("probe.score", result.Score),
		attribute.Int("probe.findings", len(result.Findings)),
	)
	if result.HasError() {
		span.SetStatus(codes.Error, result.Error)
		o.logger.Debugw("probe failed", "probe", name, "error", result.Error)
	}
	o.metrics.ObserveProbe(target, name, result, elapsed)
	return result
}
