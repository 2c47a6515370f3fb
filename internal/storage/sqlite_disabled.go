//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	"github.com/rs/zerolog"
)

func openSQLite(cfg Config, log zerolog.Logger) (Store, error) {
	return nil, errors.New("sqlite storage not built in (rebuild with -tags sqlite)")
}
