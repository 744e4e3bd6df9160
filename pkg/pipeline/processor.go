package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnykmshr/cardflow/pkg/metrics"
)

const tracerName = "github.com/vnykmshr/cardflow/pkg/pipeline"

// Config holds processor configuration options.
type Config struct {
	// Logger receives one debug record per run. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics records run and stage metrics. Nil disables metrics.
	Metrics *metrics.Registry

	// Tracer starts one span per run. Nil uses the global tracer provider.
	Tracer trace.Tracer

	// OnStageStart is called before a worker body runs.
	OnStageStart func(stageName string)

	// OnStageComplete is called after a worker body returns.
	OnStageComplete func(result StageResult)

	// OnComplete is called after every run.
	OnComplete func(result Result)
}

// Processor is the root of one domain's tree. It is built once and shared by
// all requests; only the per-request subject is mutated during Execute.
type Processor[T Subject] struct {
	name   string
	root   *Chain[T]
	config Config
	logger *slog.Logger
	tracer trace.Tracer
	stats  *statsCollector
}

func newProcessor[T Subject](name string, root *Chain[T], config Config) *Processor[T] {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Processor[T]{
		name:   name,
		root:   root,
		config: config,
		logger: logger.With(slog.String("processor", name)),
		tracer: tracer,
		stats:  newStatsCollector(),
	}
}

// Name returns the processor name.
func (p *Processor[T]) Name() string {
	return p.name
}

// Stages returns the top-level nodes of the tree: the init stage followed by
// one chain per operation.
func (p *Processor[T]) Stages() []Stage[T] {
	stages := make([]Stage[T], len(p.root.Stages))
	copy(stages, p.root.Stages)
	return stages
}

// Stats returns processor execution statistics.
func (p *Processor[T]) Stats() Stats {
	return p.stats.snapshot()
}

// Execute traverses the tree against subject. Failures inside stages with a
// failure handler end up in subject's errors; only an error from a stage
// without one is returned. A subject that no branch finished is failed with a
// pipeline/unhandled-operation error.
func (p *Processor[T]) Execute(ctx context.Context, subject T) error {
	state := subject.PipelineState()
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, p.name+".execute",
		trace.WithAttributes(
			attribute.String("cardflow.processor", p.name),
			attribute.String("cardflow.mode", state.Mode.String()),
			attribute.String("cardflow.request_id", state.RequestID),
		))
	defer span.End()

	ctx = withObserver(ctx, &observer{processor: p.name, config: &p.config, stats: p.stats})

	err := p.root.Execute(ctx, subject)
	if err == nil && !state.IsTerminal() {
		p.failUnfinished(state)
	}

	end := time.Now()
	result := Result{
		Processor: p.name,
		Status:    state.Status,
		Errors:    len(state.Errors),
		Error:     err,
		Duration:  end.Sub(start),
		StartTime: start,
		EndTime:   end,
	}
	p.stats.recordRun(result)
	p.record(state, result)

	span.SetAttributes(
		attribute.String("cardflow.status", state.Status.String()),
		attribute.Int("cardflow.errors", len(state.Errors)),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case state.Status == StatusFail:
		span.SetStatus(codes.Error, "request failed")
	}

	p.logger.DebugContext(ctx, "request processed",
		slog.String("request_id", state.RequestID),
		slog.String("mode", state.Mode.String()),
		slog.String("status", state.Status.String()),
		slog.Int("errors", len(state.Errors)),
		slog.Duration("duration", result.Duration),
	)

	if p.config.OnComplete != nil {
		p.config.OnComplete(result)
	}
	return err
}

func (p *Processor[T]) failUnfinished(state *State) {
	state.Advance(StatusRun)
	state.Fail(Error{
		Code:    "unhandled-operation",
		Group:   GroupPipeline,
		Field:   "operation",
		Message: "no branch of processor " + p.name + " finished the request",
	})
	if p.config.Metrics != nil {
		p.config.Metrics.PipelineUnfinished.WithLabelValues(p.name).Inc()
	}
	p.logger.Warn("request left the tree without a terminal status",
		slog.String("request_id", state.RequestID))
}

func (p *Processor[T]) record(state *State, result Result) {
	m := p.config.Metrics
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(p.name, state.Status.String()).Inc()
	m.PipelineDuration.WithLabelValues(p.name).Observe(result.Duration.Seconds())
	for _, e := range state.Errors {
		m.PipelineErrors.WithLabelValues(p.name, e.Group).Inc()
	}
}
