package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": dependency-free jsonl backend
//   - "sqlite": SQLite database file (build tag "sqlite")
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one operator action against a job or the service.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time
	Actor  string
	Action string // login, job_start, job_stop, job_delete, notes_save
	JobID  string
	Bundle string
	OK     bool
	Error  string
}
