// Package analysis runs thread analyses end to end: extract comments, send
// them to the analysis service under a timeout, and reconcile the response.
//
// This package enables threadlens to:
// - Track each run through Extracting, AwaitingResponse and Reconciling
// - Keep at most one run per context, cancelling the older one
// - Cancel a run from outside its call stack through the Registry
// - Tell a timeout apart from a user cancellation
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gauthierbraillon/threadlens/internal/llm"
	"github.com/gauthierbraillon/threadlens/internal/reconcile"
	"github.com/gauthierbraillon/threadlens/internal/thread"
)

// DefaultTimeout bounds the wait for the analysis service.
const DefaultTimeout = 5 * time.Minute

// Source produces the comments of one run.
type Source interface {
	Comments(ctx context.Context) ([]thread.Comment, error)
}

// StaticComments is a Source over an already extracted set.
type StaticComments []thread.Comment

// Comments returns a copy of the set.
func (s StaticComments) Comments(ctx context.Context) ([]thread.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]thread.Comment, len(s))
	copy(out, s)
	return out, nil
}

// RequestBuilder turns comments into a request for the analysis service.
type RequestBuilder interface {
	Build(comments []thread.Comment) (*llm.Request, error)
}

// Completer sends a request and returns the raw response body.
type Completer interface {
	Complete(ctx context.Context, req *llm.Request) ([]byte, error)
}

// Reconciler maps a raw response onto the records of the request.
type Reconciler interface {
	Reconcile(raw []byte, idx *thread.Index) thread.Result
}

// Event reports a phase or progress change of a run.
type Event struct {
	RunID     string
	ContextID string
	Phase     Phase
	Progress  int
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds the wait for the analysis service. Zero or less disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers fn to receive every phase and progress change.
// fn is called from the run's goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithReconciler replaces the default response reconciler.
func WithReconciler(r Reconciler) Option {
	return func(o *Orchestrator) {
		o.reconciler = r
	}
}

// WithRegistry shares a registry between orchestrators.
func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithTracerProvider sets the tracer provider (defaults to the global one).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider (defaults to the global one).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) {
		o.meterProvider = mp
	}
}

// Orchestrator owns analysis runs.
type Orchestrator struct {
	builder    RequestBuilder
	completer  Completer
	reconciler Reconciler
	registry   *Registry
	timeout    time.Duration
	logger     *slog.Logger
	observer   func(Event)

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	telemetry      *telemetry
}

// New creates an Orchestrator.
func New(builder RequestBuilder, completer Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		builder:   builder,
		completer: completer,
		timeout:   DefaultTimeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.reconciler == nil {
		o.reconciler = reconcile.New(reconcile.WithLogger(o.logger))
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	o.telemetry = newTelemetry(o.tracerProvider, o.meterProvider)

	return o
}

// Registry returns the registry of active runs.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Start begins a run for contextID and returns its handle immediately. A run
// already active for the same context is cancelled and has ended before the
// new run starts extracting.
func (o *Orchestrator) Start(ctx context.Context, contextID string, source Source) *Run {
	run := newRun(contextID)
	runCtx, cancel := context.WithCancelCause(ctx)
	run.cancel = cancel

	prev := o.registry.swap(run)
	go o.execute(runCtx, run, prev, source)

	return run
}

// Analyze runs an analysis to completion.
func (o *Orchestrator) Analyze(ctx context.Context, contextID string, source Source) Outcome {
	return o.Start(ctx, contextID, source).Wait()
}

// Cancel stops the active run of contextID. Returns true if one was found.
func (o *Orchestrator) Cancel(contextID string) bool {
	return o.registry.Cancel(contextID, ErrCancelledByUser)
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, prev *Run, source Source) {
	started := time.Now()
	logger := o.logger.With("run_id", run.id, "context_id", run.contextID)

	ctx, span := o.telemetry.startRun(ctx, run)
	defer span.End()

	outcome := o.pipeline(ctx, run, prev, source, logger)

	o.registry.release(run)
	run.phase.Store(int32(outcome.Phase))
	o.notify(run)
	o.telemetry.record(ctx, outcome, time.Since(started))
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	logger.Info("analysis finished",
		"phase", outcome.Phase.String(),
		"progress", run.Progress(),
		"duration", time.Since(started),
		"error", outcome.Err,
	)

	run.finish(outcome)
	run.stop(context.Canceled)
}

func (o *Orchestrator) pipeline(ctx context.Context, run *Run, prev *Run, source Source, logger *slog.Logger) Outcome {
	if prev != nil {
		logger.Info("superseding active run", "previous_run_id", prev.id)
		prev.stop(ErrSuperseded)
		<-prev.Done()
	}

	o.transition(run, PhaseExtracting, progressStarted, logger)
	if ctx.Err() != nil {
		return cancelled(ctx, logger)
	}

	extractCtx, extractSpan := o.telemetry.startStage(ctx, "extract")
	comments, err := source.Comments(extractCtx)
	extractSpan.End()
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx, logger)
		}
		return Outcome{Phase: PhaseFailed, Err: fmt.Errorf("comment extraction failed: %w", err)}
	}
	if len(comments) == 0 {
		return Outcome{Phase: PhaseFailed, Err: ErrEmptyExtraction}
	}
	logger.Info("comments extracted", "count", len(comments))
	run.advance(progressExtracted)
	o.notify(run)

	req, err := o.builder.Build(comments)
	if err != nil {
		return Outcome{Phase: PhaseFailed, Err: err}
	}

	o.transition(run, PhaseAwaitingResponse, progressDispatch, logger)
	raw, err := o.dispatch(ctx, req)
	if err != nil {
		var te *TimeoutError
		switch {
		case errors.As(err, &te):
			logger.Warn("analysis service timed out", "after", te.After)
			return Outcome{Phase: PhaseCancelled, Err: te}
		case ctx.Err() != nil:
			return cancelled(ctx, logger)
		default:
			return Outcome{Phase: PhaseFailed, Err: err}
		}
	}
	if ctx.Err() != nil {
		return cancelled(ctx, logger)
	}

	o.transition(run, PhaseReconciling, progressResponse, logger)
	_, reconcileSpan := o.telemetry.startStage(ctx, "reconcile")
	result := o.reconciler.Reconcile(raw, req.Index)
	reconcileSpan.End()

	run.advance(progressDone)
	return Outcome{Phase: PhaseCompleted, Result: &result}
}

// dispatch sends req under the configured timeout. A timeout is reported as
// a *TimeoutError; any other cancellation as the context's error.
func (o *Orchestrator) dispatch(ctx context.Context, req *llm.Request) ([]byte, error) {
	ctx, span := o.telemetry.startStage(ctx, "dispatch")
	defer span.End()

	stop := context.CancelFunc(func() {})
	if o.timeout > 0 {
		ctx, stop = context.WithTimeoutCause(ctx, o.timeout, &TimeoutError{After: o.timeout})
	}
	defer stop()

	raw, err := o.completer.Complete(ctx, req)
	// A response that arrives after the deadline or a cancel is discarded.
	if ctx.Err() != nil {
		var te *TimeoutError
		if cause := context.Cause(ctx); errors.As(cause, &te) {
			return nil, te
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// cancelled is the outcome of a run stopped through its context. Only a
// timeout carries an error.
func cancelled(ctx context.Context, logger *slog.Logger) Outcome {
	cause := context.Cause(ctx)
	logger.Info("analysis cancelled", "cause", cause)

	var te *TimeoutError
	if errors.As(cause, &te) {
		return Outcome{Phase: PhaseCancelled, Err: te}
	}
	return Outcome{Phase: PhaseCancelled}
}

func (o *Orchestrator) transition(run *Run, phase Phase, progress int, logger *slog.Logger) {
	run.phase.Store(int32(phase))
	run.advance(progress)
	logger.Debug("phase changed", "phase", phase.String(), "progress", run.Progress())
	o.notify(run)
}

func (o *Orchestrator) notify(run *Run) {
	if o.observer == nil {
		return
	}
	o.observer(Event{
		RunID:     run.id,
		ContextID: run.contextID,
		Phase:     run.Phase(),
		Progress:  run.Progress(),
	})
}
