package jobs

import (
	"sort"
	"sync"
	"time"
)

// Registry is the authoritative in-memory mapping from job id to job
// state. All state lives for the process lifetime only; there is no
// persistence by design.
//
// Mutating methods are safe for concurrent use across different job ids.
// For the same id, the dispatch engine serializes Advance/IncrementSent/
// MarkFinished through its single-flight guard; Stop/Delete may race with
// a tick and are resolved by the status checks below.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*Job{}, now: time.Now}
}

// Register inserts a job. Sent is zeroed and status defaults to running.
// Registering an id twice is a caller error; the newer job wins.
func (r *Registry) Register(j Job) {
	j.Sent = 0
	if j.Status == "" {
		j.Status = StatusRunning
	}
	r.mu.Lock()
	cp := j
	r.jobs[j.ID] = &cp
	r.mu.Unlock()
}

// Get returns a copy of the job, if present.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Advance moves the record cursor forward by one. Counters are frozen
// once a job leaves the running state, so a tick that was already in
// flight when Stop hit cannot mutate the job after StoppedAt.
func (r *Registry) Advance(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != StatusRunning {
		return Job{}, false
	}
	j.Index++
	return *j, true
}

// IncrementSent counts one successfully delivered record. Like Advance,
// it is a no-op on non-running jobs.
func (r *Registry) IncrementSent(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != StatusRunning {
		return Job{}, false
	}
	j.Sent++
	return *j, true
}

// MarkErrorNotified sets the first-error flag. It reports whether the
// caller won the race, i.e. whether this failure should be notified.
func (r *Registry) MarkErrorNotified(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.ErrorNotified {
		return false
	}
	j.ErrorNotified = true
	return true
}

// MarkFinished transitions running -> finished and stamps FinishedAt.
// It is a no-op on absent jobs and on jobs already in a terminal state,
// which makes the stop-vs-exhaustion race harmless.
func (r *Registry) MarkFinished(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != StatusRunning {
		return Job{}, false
	}
	j.Status = StatusFinished
	j.FinishedAt = r.now()
	return *j, true
}

// MarkStopped transitions running -> stopped and stamps StoppedAt.
// Terminal states are final: stopping a finished job is a no-op.
func (r *Registry) MarkStopped(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != StatusRunning {
		return Job{}, false
	}
	j.Status = StatusStopped
	j.StoppedAt = r.now()
	return *j, true
}

// Delete removes the job and returns its last state.
func (r *Registry) Delete(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	delete(r.jobs, id)
	return *j, true
}

// List returns summaries of all jobs ordered by creation time.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// Totals aggregates job counts by status.
func (r *Registry) Totals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := Totals{Total: len(r.jobs)}
	for _, j := range r.jobs {
		switch j.Status {
		case StatusRunning:
			t.Running++
		case StatusFinished:
			t.Finished++
		case StatusStopped:
			t.Stopped++
		}
	}
	return t
}

// StatusPerJob returns the per-job projection for the periodic reports,
// ordered by creation time.
func (r *Registry) StatusPerJob() []StatusEntry {
	r.mu.RLock()
	out := make([]StatusEntry, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.statusEntry())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}
