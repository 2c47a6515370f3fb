// Package notes persists the operator's free-text scratchpad as a single
// AES-256-GCM encrypted file. Read failures degrade to an empty note;
// only saves report errors.
package notes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// envelope is the on-disk format. The GCM tag travels inside Data.
type envelope struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

type Store struct {
	path string
	key  [32]byte
	log  zerolog.Logger

	mu     sync.Mutex
	cache  string
	loaded bool
}

// NewStore derives the cipher key from the configured passphrase.
func NewStore(path, passphrase string, log zerolog.Logger) *Store {
	return &Store{path: path, key: sha256.Sum256([]byte(passphrase)), log: log}
}

// Get returns the decrypted note text. A missing or unreadable file
// yields an empty note; the error is logged, not surfaced, so a broken
// notes file can never block the dashboard.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cache
	}
	s.loaded = true

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("failed to read notes file")
		return ""
	}
	text, err := s.decrypt(raw)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("failed to decrypt notes file")
		return ""
	}
	s.cache = text
	return text
}

// Save encrypts and writes the note, then updates the cache.
func (s *Store) Save(text string) error {
	payload, err := s.encrypt(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, payload, 0o600); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache = text
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *Store) encrypt(text string) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, []byte(text), nil)
	return json.Marshal(envelope{
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(sealed),
	})
}

func (s *Store) decrypt(raw []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("parse envelope: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return "", fmt.Errorf("decode data: %w", err)
	}
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("bad nonce size")
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *Store) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
