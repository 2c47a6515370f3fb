package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 250 * time.Millisecond

// Manager loads the config file and watches it for edits, pushing each
// successfully parsed revision to a callback. A broken edit never
// replaces the last good config.
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	lastHash [32]byte

	log zerolog.Logger
}

func NewManager(path string, log zerolog.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return cfg.withDefaults(), nil
}

// Load parses the file and commits it as the current config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

// Current returns the last committed config, nil before the first Load.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) [32]byte {
	b, err := json.Marshal(cfg)
	if err != nil {
		return [32]byte{}
	}
	return sha256.Sum256(b)
}

// Watch blocks until ctx is done, reloading the file on changes.
// onApply runs after each committed revision. Editors that write via
// rename/replace are handled by watching the parent directory.
func (m *Manager) Watch(ctx context.Context, onApply func(*Config)) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %q: %w", dir, err)
	}
	m.log.Debug().Str("path", m.path).Msg("config watcher started")

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := m.Parse()
		if err != nil {
			m.log.Warn().Err(err).Str("path", m.path).Msg("config parse failed, keeping previous")
			return
		}
		h := hashConfig(cfg)
		m.mu.RLock()
		unchanged := h == m.lastHash
		m.mu.RUnlock()
		if unchanged {
			return
		}
		m.commit(cfg)
		m.log.Info().Str("path", m.path).Msg("config reloaded")
		if onApply != nil {
			onApply(cfg)
		}
	}
	// debounce so partial writes settle before we parse
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn().Err(err).Str("dir", dir).Msg("config watch error")
		}
	}
}
