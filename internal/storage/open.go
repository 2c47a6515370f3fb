// Package storage is the optional audit trail for operator actions. Job
// and log state stay process-memory-resident by design; the audit trail
// is the one thing worth keeping across restarts.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Store is the minimal audit API used by the HTTP layer.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if auditing is disabled.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
