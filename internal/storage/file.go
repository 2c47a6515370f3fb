package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// fileStore appends one JSON object per line. Simple, greppable, no
// dependencies; rotation is left to logrotate.
type fileStore struct {
	mu   sync.Mutex
	f    *os.File
	log  zerolog.Logger
	path string
}

type auditLine struct {
	At     string `json:"at"`
	Actor  string `json:"actor,omitempty"`
	Action string `json:"action"`
	JobID  string `json:"job_id,omitempty"`
	Bundle string `json:"bundle,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"err,omitempty"`
}

func openFile(cfg Config, log zerolog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileStore{f: f, log: log, path: cfg.Path}, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.f == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(auditLine{
		At:     e.At.Format(time.RFC3339Nano),
		Actor:  e.Actor,
		Action: e.Action,
		JobID:  e.JobID,
		Bundle: e.Bundle,
		OK:     e.OK,
		Error:  e.Error,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
