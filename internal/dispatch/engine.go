// Package dispatch paces delivery of job batches: it turns a batch size
// and a day window into a fixed per-record interval, drives one ticker
// per job, and performs one send per tick.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jetstream/internal/jobs"
	"jetstream/internal/oplog"
	"jetstream/internal/sender/appsflyer"
)

var ErrNotFound = errors.New("job not found")

// Sender delivers one event to the ingestion endpoint.
type Sender interface {
	Deliver(ctx context.Context, bundle, devKey string, ev appsflyer.Event) error
	EndpointURL(bundle string) string
}

// Events receives job lifecycle notifications. Implementations are
// best-effort; the engine discards every returned error.
type Events interface {
	JobStarted(ctx context.Context, j jobs.Job, days float64) error
	JobFinished(ctx context.Context, j jobs.Job) error
	SendFailed(ctx context.Context, j jobs.Job, position, status int, body string) error
}

// runner is the cancellable handle for one job's ticker. busy is the
// per-job single-flight guard: a tick that finds it set is skipped, so a
// delivery slower than the interval can never overlap itself.
type runner struct {
	cancel chan struct{}
	once   sync.Once
	busy   atomic.Bool
}

func (r *runner) stop() {
	r.once.Do(func() { close(r.cancel) })
}

type StartRequest struct {
	Bundle   string
	DevKey   string
	Days     float64
	Records  []jobs.Record
	FileName string
}

type StartResult struct {
	JobID      string  `json:"jobId"`
	Total      int     `json:"total"`
	IntervalMs float64 `json:"intervalMs"`
}

type Engine struct {
	reg    *jobs.Registry
	logs   *oplog.Buffer
	sender Sender
	events Events
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	runners map[string]*runner
	wg      sync.WaitGroup
}

func NewEngine(reg *jobs.Registry, logs *oplog.Buffer, sender Sender, events Events, log zerolog.Logger) *Engine {
	return &Engine{
		reg:     reg,
		logs:    logs,
		sender:  sender,
		events:  events,
		log:     log,
		now:     time.Now,
		runners: map[string]*runner{},
	}
}

// Start registers the job, arms its ticker and reports the computed
// pacing. Records and days validity is the caller's responsibility; a
// degenerate interval is clamped so the ticker stays armable.
func (e *Engine) Start(req StartRequest) (StartResult, error) {
	total := len(req.Records)
	if total == 0 {
		return StartResult{}, errors.New("empty batch")
	}
	if req.Days <= 0 {
		return StartResult{}, errors.New("days must be positive")
	}

	windowSeconds := req.Days * 24 * 60 * 60
	intervalMs := windowSeconds * 1000 / float64(total)
	interval := time.Duration(intervalMs * float64(time.Millisecond))
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	now := e.now()
	j := jobs.Job{
		ID:            uuid.NewString(),
		Bundle:        req.Bundle,
		DevKey:        req.DevKey,
		FileName:      req.FileName,
		Records:       req.Records,
		Total:         total,
		IntervalMs:    intervalMs,
		CreatedAt:     now,
		ExpectedEndAt: now.Add(time.Duration(windowSeconds * float64(time.Second))),
	}
	e.reg.Register(j)

	e.logs.Append(oplog.Entry{
		Level:  oplog.LevelInfo,
		Type:   oplog.TypeJobStart,
		JobID:  j.ID,
		Bundle: j.Bundle,
		Message: fmtJobStart(j, req.Days),
		Meta: map[string]any{
			"fileName":    j.FileName,
			"total":       total,
			"days":        req.Days,
			"intervalSec": intervalMs / 1000,
		},
	})
	go func() { _ = e.events.JobStarted(context.Background(), j, req.Days) }()

	r := &runner{cancel: make(chan struct{})}
	e.mu.Lock()
	e.runners[j.ID] = r
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(j.ID, interval, r)

	return StartResult{JobID: j.ID, Total: total, IntervalMs: intervalMs}, nil
}

func (e *Engine) run(id string, every time.Duration, r *runner) {
	defer e.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-r.cancel:
			return
		case <-t.C:
			if e.tick(id, r) {
				r.stop()
				e.detach(id, r)
				return
			}
		}
	}
}

// Stop cancels the job's ticker, then marks it stopped. Cancellation
// comes first so no further tick can observe the job afterwards.
func (e *Engine) Stop(id string) (jobs.Job, error) {
	if _, ok := e.reg.Get(id); !ok {
		return jobs.Job{}, ErrNotFound
	}
	e.cancelRunner(id)

	if j, changed := e.reg.MarkStopped(id); changed {
		e.log.Info().Str("job_id", id).Msg("job stopped")
		return j, nil
	}
	// Already finished or stopped; terminal state stands.
	j, ok := e.reg.Get(id)
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	return j, nil
}

// Delete cancels any active ticker and removes the job. Refusing to
// delete a running job is boundary-layer policy, not enforced here.
func (e *Engine) Delete(id string) (jobs.Job, error) {
	e.cancelRunner(id)
	j, ok := e.reg.Delete(id)
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	e.log.Info().Str("job_id", id).Msg("job deleted")
	return j, nil
}

// Shutdown cancels all tickers and waits for in-flight ticks, bounded by
// ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, r := range e.runners {
		r.stop()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) cancelRunner(id string) {
	e.mu.Lock()
	r := e.runners[id]
	delete(e.runners, id)
	e.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

// detach drops the runner entry after a self-terminated loop, unless a
// Stop/Delete already removed it.
func (e *Engine) detach(id string, r *runner) {
	e.mu.Lock()
	if e.runners[id] == r {
		delete(e.runners, id)
	}
	e.mu.Unlock()
}

// hasRunner reports whether the job still has an armed ticker.
func (e *Engine) hasRunner(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runners[id]
	return ok
}
