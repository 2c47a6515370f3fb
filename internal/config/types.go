package config

import "time"

// Config is the service configuration, loaded from a YAML or JSON file.
// Unknown keys are rejected so typos surface at startup, not in prod.
type Config struct {
	ListenAddr string `json:"listen_addr,omitempty"`

	Delivery DeliveryConfig `json:"delivery,omitempty"`
	Telegram TelegramConfig `json:"telegram"`
	Admin    AdminConfig    `json:"admin"`
	Session  SessionConfig  `json:"session"`
	Notes    NotesConfig    `json:"notes,omitempty"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage controls the optional operator-action audit trail.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type DeliveryConfig struct {
	// BaseURL overrides the AppsFlyer endpoint, mainly for testing.
	BaseURL string `json:"base_url,omitempty"`
}

type TelegramConfig struct {
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type AdminConfig struct {
	Username string `json:"username"`
	// PasswordHash (bcrypt) is preferred; Password is a plaintext
	// fallback for local setups.
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

type SessionConfig struct {
	Secret string `json:"secret"`
	// TTL is a Go duration string (e.g. "168h").
	TTL string `json:"ttl,omitempty"`
}

type NotesConfig struct {
	Path string `json:"path,omitempty"`
	Key  string `json:"key"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

func (c *Config) withDefaults() *Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":3000"
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "168h"
	}
	if c.Notes.Path == "" {
		c.Notes.Path = "./data/notes.enc"
	}
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = 1
	}
	return c
}

// SessionTTL parses the session lifetime, falling back to a week.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.TTL)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// StorageBusyTimeout parses the sqlite busy timeout; 0 means default.
func (c *Config) StorageBusyTimeout() time.Duration {
	if c.Storage == nil || c.Storage.BusyTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Storage.BusyTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
