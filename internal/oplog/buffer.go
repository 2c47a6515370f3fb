// Package oplog keeps a bounded, in-memory trail of per-job dispatch
// events for the logs API. It complements (and mirrors into) the
// structured process log; it is not a persistence layer.
package oplog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MaxEntries bounds the buffer; the oldest entries are evicted first.
const MaxEntries = 5000

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Type string

const (
	TypeJobStart    Type = "job_start"
	TypeJobFinish   Type = "job_finish"
	TypeSendAttempt Type = "send_attempt"
	TypeSendSuccess Type = "send_success"
	TypeSendError   Type = "send_error"
)

// Entry is one observability record. Meta is opaque to the buffer.
type Entry struct {
	TS      time.Time      `json:"ts"`
	Level   Level          `json:"level"`
	Type    Type           `json:"type"`
	JobID   string         `json:"jobId"`
	Bundle  string         `json:"bundle"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta"`
}

// Buffer is an append-only ring of recent entries, safe for concurrent
// appends from multiple job dispatch callbacks.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	max     int

	log zerolog.Logger
	now func() time.Time
}

func NewBuffer(log zerolog.Logger) *Buffer {
	return &Buffer{max: MaxEntries, log: log, now: time.Now}
}

// Append stamps the entry and stores it, evicting from the front once
// the capacity is exceeded. Each entry is mirrored to the process log.
func (b *Buffer) Append(e Entry) {
	e.TS = b.now()
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}

	b.mu.Lock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = append([]Entry(nil), b.entries[len(b.entries)-b.max:]...)
	}
	b.mu.Unlock()

	ev := b.log.Info()
	if e.Level == LevelError {
		ev = b.log.Error()
	}
	ev.Str("type", string(e.Type)).
		Str("job_id", e.JobID).
		Str("bundle", e.Bundle).
		Msg(e.Message)
}

// Query returns entries filtered by exact bundle match (when bundle is
// non-empty), keeping only the most recent limit entries (when limit > 0).
// Relative order is oldest to newest.
func (b *Buffer) Query(bundle string, limit int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Entry
	if bundle == "" {
		out = append(out, b.entries...)
	} else {
		for _, e := range b.entries {
			if e.Bundle == bundle {
				out = append(out, e)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	if out == nil {
		out = []Entry{}
	}
	return out
}

// Len reports the current number of retained entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
