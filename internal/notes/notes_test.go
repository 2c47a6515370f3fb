package notes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSaveGetRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "notes.enc")
	s := NewStore(path, "passphrase", zerolog.Nop())

	if err := s.Save("remember the dev key rotation"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Fresh store, same key: must decrypt from disk.
	s2 := NewStore(path, "passphrase", zerolog.Nop())
	if got := s2.Get(); got != "remember the dev key rotation" {
		t.Fatalf("Get = %q", got)
	}
}

func TestCiphertextIsOpaque(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.enc")
	s := NewStore(path, "passphrase", zerolog.Nop())
	if err := s.Save("plaintext marker"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(raw), "plaintext marker") {
		t.Fatal("note stored unencrypted")
	}
}

func TestWrongKeyDegradesToEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.enc")
	if err := NewStore(path, "key-a", zerolog.Nop()).Save("secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := NewStore(path, "key-b", zerolog.Nop()).Get(); got != "" {
		t.Fatalf("wrong key yielded %q, want empty", got)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "absent.enc"), "k", zerolog.Nop())
	if got := s.Get(); got != "" {
		t.Fatalf("Get = %q, want empty", got)
	}
}

func TestCorruptFileIsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.enc")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := NewStore(path, "k", zerolog.Nop()).Get(); got != "" {
		t.Fatalf("Get = %q, want empty", got)
	}
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.enc")
	s := NewStore(path, "k", zerolog.Nop())
	if err := s.Save("first"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("second"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.Get(); got != "second" {
		t.Fatalf("Get = %q", got)
	}
}
