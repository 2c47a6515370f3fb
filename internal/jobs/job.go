package jobs

import "time"

// Status is the lifecycle state of a job. Transitions are one-way:
// running -> finished or running -> stopped.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusStopped  Status = "stopped"
)

// Record is one row of an uploaded batch, keyed by CSV column name.
// Records are set once at job creation and never mutated.
type Record map[string]string

// Job is one paced batch-dispatch run over a fixed set of records.
//
// Index and Sent are mutated only by the dispatch engine, which holds a
// per-job single-flight guard; everything else is immutable after
// registration. The registry hands out value copies, never the stored
// struct.
type Job struct {
	ID       string
	Bundle   string
	DevKey   string
	FileName string
	Records  []Record

	Total      int
	IntervalMs float64

	Index int
	Sent  int

	Status        Status
	CreatedAt     time.Time
	ExpectedEndAt time.Time
	FinishedAt    time.Time
	StoppedAt     time.Time

	// ErrorNotified gates the per-job error notification: only the first
	// failed send produces a push, later failures are log-only.
	ErrorNotified bool
}

// Summary is the job projection served to the jobs listing.
type Summary struct {
	ID            string    `json:"id"`
	Bundle        string    `json:"bundle"`
	FileName      string    `json:"fileName"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpectedEndAt time.Time `json:"expectedEndAt"`
	Sent          int       `json:"sent"`
	Total         int       `json:"total"`
	Status        Status    `json:"status"`
}

// Totals are aggregate job counts by status, used by the heartbeat report.
type Totals struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Finished int `json:"finished"`
	Stopped  int `json:"stopped"`
}

// StatusEntry is the per-job projection used by the twice-daily report.
type StatusEntry struct {
	ID            string
	Bundle        string
	FileName      string
	Status        Status
	Sent          int
	Total         int
	CreatedAt     time.Time
	ExpectedEndAt time.Time
	FinishedAt    time.Time
	StoppedAt     time.Time
}

func (j Job) summary() Summary {
	return Summary{
		ID:            j.ID,
		Bundle:        j.Bundle,
		FileName:      j.FileName,
		CreatedAt:     j.CreatedAt,
		ExpectedEndAt: j.ExpectedEndAt,
		Sent:          j.Sent,
		Total:         j.Total,
		Status:        j.Status,
	}
}

func (j Job) statusEntry() StatusEntry {
	return StatusEntry{
		ID:            j.ID,
		Bundle:        j.Bundle,
		FileName:      j.FileName,
		Status:        j.Status,
		Sent:          j.Sent,
		Total:         j.Total,
		CreatedAt:     j.CreatedAt,
		ExpectedEndAt: j.ExpectedEndAt,
		FinishedAt:    j.FinishedAt,
		StoppedAt:     j.StoppedAt,
	}
}
