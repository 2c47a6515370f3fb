package dispatch

import (
	"context"
	"errors"
	"fmt"

	"jetstream/internal/jobs"
	"jetstream/internal/oplog"
	"jetstream/internal/sender/appsflyer"
)

// logBodyLimit caps the error body carried in send_error log meta.
const logBodyLimit = 300

// tick performs at most one unit of work for the job and reports whether
// the loop should terminate. A tick arriving while the previous one is
// still delivering is skipped, never queued; skipping keeps the pacing
// schedule intact and the sent <= index <= total invariant safe.
func (e *Engine) tick(id string, r *runner) (done bool) {
	if !r.busy.CompareAndSwap(false, true) {
		e.log.Debug().Str("job_id", id).Msg("tick skipped, previous send still in flight")
		return false
	}
	defer r.busy.Store(false)

	defer func() {
		if rec := recover(); rec != nil {
			e.logs.Append(oplog.Entry{
				Level:   oplog.LevelError,
				Type:    oplog.TypeSendError,
				JobID:   id,
				Message: fmt.Sprintf("Unexpected error: %v", rec),
			})
			done = false
		}
	}()

	j, ok := e.reg.Get(id)
	if !ok || j.Status != jobs.StatusRunning {
		return true
	}
	if j.Index >= j.Total {
		e.finish(id)
		return true
	}

	e.dispatch(j)
	return false
}

// dispatch sends the record at the job's cursor. Failed records are
// counted and skipped, never retried: a stalled record must not block
// the interval schedule.
func (e *Engine) dispatch(j jobs.Job) {
	position := j.Index + 1
	row := j.Records[j.Index]
	ev := buildEvent(row, e.now())

	e.logs.Append(oplog.Entry{
		Level:   oplog.LevelInfo,
		Type:    oplog.TypeSendAttempt,
		JobID:   j.ID,
		Bundle:  j.Bundle,
		Message: fmt.Sprintf("Attempt %d/%d to %s", position, j.Total, e.sender.EndpointURL(j.Bundle)),
		Meta: map[string]any{
			"index":          position,
			"total":          j.Total,
			"eventName":      ev.EventName,
			"advertising_id": ev.AdvertisingID,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), appsflyer.DeliverTimeout)
	err := e.sender.Deliver(ctx, j.Bundle, j.DevKey, ev)
	cancel()

	if err == nil {
		e.reg.Advance(j.ID)
		e.reg.IncrementSent(j.ID)
		e.logs.Append(oplog.Entry{
			Level:   oplog.LevelInfo,
			Type:    oplog.TypeSendSuccess,
			JobID:   j.ID,
			Bundle:  j.Bundle,
			Message: fmt.Sprintf("Success %d/%d", position, j.Total),
			Meta:    map[string]any{"index": position, "total": j.Total, "eventName": ev.EventName},
		})
		return
	}

	status := 0
	body := err.Error()
	var de *appsflyer.DeliveryError
	if errors.As(err, &de) {
		status = de.Status
		body = de.Body
	}
	statusText := "n/a"
	if status > 0 {
		statusText = fmt.Sprintf("%d", status)
	}

	e.logs.Append(oplog.Entry{
		Level:   oplog.LevelError,
		Type:    oplog.TypeSendError,
		JobID:   j.ID,
		Bundle:  j.Bundle,
		Message: fmt.Sprintf("Error %d/%d: status=%s msg=%s", position, j.Total, statusText, body),
		Meta: map[string]any{
			"index":  position,
			"total":  j.Total,
			"status": status,
			"data":   truncate(body, logBodyLimit),
		},
	})

	// Only the job's first failure produces a push; the rest stay in logs.
	if e.reg.MarkErrorNotified(j.ID) {
		snapshot, _ := e.reg.Get(j.ID)
		go func() { _ = e.events.SendFailed(context.Background(), snapshot, position, status, body) }()
	}

	e.reg.Advance(j.ID)
}

func (e *Engine) finish(id string) {
	j, changed := e.reg.MarkFinished(id)
	if !changed {
		return
	}
	e.logs.Append(oplog.Entry{
		Level:   oplog.LevelInfo,
		Type:    oplog.TypeJobFinish,
		JobID:   j.ID,
		Bundle:  j.Bundle,
		Message: fmt.Sprintf("Job finished for bundle=%s, file=%s, total=%d", j.Bundle, j.FileName, j.Total),
		Meta:    map[string]any{"total": j.Total},
	})
	go func() { _ = e.events.JobFinished(context.Background(), j) }()
}

func fmtJobStart(j jobs.Job, days float64) string {
	return fmt.Sprintf("Job started for bundle=%s, file=%s, total=%d, days=%g, interval=%.2fs",
		j.Bundle, j.FileName, j.Total, days, j.IntervalMs/1000)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
