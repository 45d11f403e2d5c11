package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) (*Store, *FileStorage) {
	t.Helper()
	fs, err := NewFileStorage(filepath.Join(t.TempDir(), "nested", "session.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewStore(fs, zerolog.Nop())
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s, fs
}

func TestStore_EmptyIsNotAuthenticated(t *testing.T) {
	s, _ := newTestStore(t)
	if s.IsAuthenticated() {
		t.Error("expected fresh store to be unauthenticated")
	}
	if s.Token() != "" {
		t.Errorf("expected empty token, got %q", s.Token())
	}
}

func TestStore_SetTokenPersists(t *testing.T) {
	s, fs := newTestStore(t)
	if err := s.SetToken("abc"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Error("expected authenticated after SetToken")
	}

	reloaded := NewStore(fs, zerolog.Nop())
	if err := reloaded.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if reloaded.Token() != "abc" {
		t.Errorf("expected token to survive reload, got %q", reloaded.Token())
	}

	info, err := os.Stat(fs.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", info.Mode().Perm())
	}
}

func TestStore_ClearLogsOut(t *testing.T) {
	s, fs := newTestStore(t)
	s.SetToken("abc")

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("expected unauthenticated after Clear")
	}
	if _, ok, _ := fs.Get(TokenKey); ok {
		t.Error("expected token removed from storage")
	}
}

func TestStore_EmptyTokenIsNotAuthenticated(t *testing.T) {
	s := NewStore(NewMemoryStorage(), zerolog.Nop())
	s.SetToken("")
	if s.IsAuthenticated() {
		t.Error("empty token must not count as authenticated")
	}
}

func TestStore_SubjectFromJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "nurse.jane",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	s := NewStore(NewMemoryStorage(), zerolog.Nop())
	s.SetToken(tok)

	if s.Subject() != "nurse.jane" {
		t.Errorf("expected subject nurse.jane, got %q", s.Subject())
	}
	got, ok := s.ExpiresAt()
	if !ok || !got.Equal(exp) {
		t.Errorf("expected expiry %v, got %v (ok=%v)", exp, got, ok)
	}
}

func TestStore_SubjectFromOpaqueToken(t *testing.T) {
	s := NewStore(NewMemoryStorage(), zerolog.Nop())
	s.SetToken("opaque-token")
	if s.Subject() != "" {
		t.Errorf("expected no subject for opaque token, got %q", s.Subject())
	}
	if _, ok := s.ExpiresAt(); ok {
		t.Error("expected no expiry for opaque token")
	}
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	os.WriteFile(path, []byte("{not json"), 0o600)

	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewStore(fs, zerolog.Nop())
	if err := s.Init(); err == nil {
		t.Error("expected error for corrupt session file")
	}
}

func TestFileStorage_KeepsOtherKeys(t *testing.T) {
	fs, _ := NewFileStorage(filepath.Join(t.TempDir(), "session.json"))
	fs.Set("username", "jane")
	fs.Set(TokenKey, "abc")
	fs.Delete(TokenKey)

	v, ok, err := fs.Get("username")
	if err != nil || !ok || v != "jane" {
		t.Errorf("expected username to survive token delete, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestStore_SharedFileSeesOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	open := func() *Store {
		t.Helper()
		fs, err := NewFileStorage(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := NewStore(fs, zerolog.Nop())
		if err := s.Init(); err != nil {
			t.Fatalf("init: %v", err)
		}
		return s
	}
	consoleStore := open()
	cliStore := open()

	if err := consoleStore.SetToken("tok"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if got := cliStore.Token(); got != "tok" {
		t.Fatalf("expected cli to see login, got %q", got)
	}

	if err := cliStore.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if consoleStore.IsAuthenticated() {
		t.Errorf("expected console to see logout, token=%q", consoleStore.Token())
	}

	if err := cliStore.SetToken("fresh"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if got := consoleStore.Token(); got != "fresh" {
		t.Errorf("expected console to see new login, got %q", got)
	}
}

func TestStore_UnreadableStorageUsesLastToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewStore(fs, zerolog.Nop())
	if err := s.SetToken("abc"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := s.Token(); got != "abc" {
		t.Errorf("expected cached token, got %q", got)
	}
}
