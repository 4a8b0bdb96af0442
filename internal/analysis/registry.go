package analysis

import "sync"

// Registry maps each context to its active run so that a cancel signal from
// outside the run's call stack can reach it. At most one run is active per
// context.
type Registry struct {
	active map[string]*Run
	mutex  sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*Run),
	}
}

// swap installs run as the active run for its context and returns the run
// it replaced, if any.
func (r *Registry) swap(run *Run) *Run {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev := r.active[run.contextID]
	r.active[run.contextID] = run
	return prev
}

// release removes run, but only while it is still the context's active run.
func (r *Registry) release(run *Run) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.active[run.contextID] == run {
		delete(r.active, run.contextID)
	}
}

// Cancel stops the active run of contextID with cause.
// Returns true if a run was found.
func (r *Registry) Cancel(contextID string, cause error) bool {
	r.mutex.Lock()
	run, exists := r.active[contextID]
	r.mutex.Unlock()

	if !exists {
		return false
	}
	run.stop(cause)
	return true
}

// Active returns the active run of contextID.
func (r *Registry) Active(contextID string) (*Run, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	run, exists := r.active[contextID]
	return run, exists
}

// ActiveCount returns the number of contexts with a run in flight.
func (r *Registry) ActiveCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.active)
}
