package analysis

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gauthierbraillon/threadlens/internal/thread"
)

// Phase is a run's position in its lifecycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseExtracting
	PhaseAwaitingResponse
	PhaseReconciling
	PhaseCompleted
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseExtracting:
		return "extracting"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseReconciling:
		return "reconciling"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Progress checkpoints.
const (
	progressStarted   = 5
	progressExtracted = 30
	progressDispatch  = 40
	progressResponse  = 80
	progressDone      = 100
)

// Outcome is how a run ended. Err is nil for completed runs and for runs
// cancelled by the user or by a newer run; a timed-out run is cancelled with
// a *TimeoutError.
type Outcome struct {
	RunID  string
	Phase  Phase
	Result *thread.Result
	Err    error
}

// Run is the handle of one analysis in flight.
type Run struct {
	id        string
	contextID string

	phase    atomic.Int32
	progress atomic.Int32

	cancel  context.CancelCauseFunc
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newRun(contextID string) *Run {
	return &Run{
		id:        uuid.NewString(),
		contextID: contextID,
		done:      make(chan struct{}),
	}
}

// ID returns the unique run identifier.
func (r *Run) ID() string { return r.id }

// ContextID returns the context (page, connection) the run belongs to.
func (r *Run) ContextID() string { return r.contextID }

// Phase returns the current phase.
func (r *Run) Phase() Phase { return Phase(r.phase.Load()) }

// Progress returns an advisory completion percentage. It never decreases.
func (r *Run) Progress() int { return int(r.progress.Load()) }

// Done is closed when the run reaches a terminal phase.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends and returns its outcome.
func (r *Run) Wait() Outcome {
	<-r.done
	return r.outcome
}

// Cancel stops the run on behalf of the user. It is a no-op once the run has ended.
func (r *Run) Cancel() {
	r.stop(ErrCancelledByUser)
}

func (r *Run) stop(cause error) {
	if r.cancel != nil {
		r.cancel(cause)
	}
}

// advance raises progress to p unless it is already higher.
func (r *Run) advance(p int) {
	for {
		cur := r.progress.Load()
		if int32(p) <= cur || r.progress.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

func (r *Run) finish(o Outcome) {
	r.once.Do(func() {
		o.RunID = r.id
		r.outcome = o
		r.phase.Store(int32(o.Phase))
		close(r.done)
	})
}
