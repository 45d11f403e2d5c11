package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/config"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/auth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/reauth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/sandbox"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/session"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := []string{"serve", "sandbox", "login", "logout", "status"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %q, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := newLogger(&config.Config{Env: "production", LogLevel: tt.level}, &bytes.Buffer{})
		if got := logger.GetLevel(); got != tt.want {
			t.Errorf("level %q: got %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "production"}, &buf)
	logger.Info().Msg("hello")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("expected JSON log line, got %q", buf.String())
	}
}

func TestPrintStatus(t *testing.T) {
	sess := session.NewStore(session.NewMemoryStorage(), zerolog.Nop())
	var out bytes.Buffer

	printStatus(&out, sess, time.Now())
	if out.String() != "Not logged in.\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	jwtCfg := auth.JWTConfig{SigningKey: []byte("k"), TTL: time.Hour}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	token, err := auth.IssueToken(jwtCfg, "reception", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sess.SetToken(token)

	out.Reset()
	printStatus(&out, sess, now)
	if !strings.Contains(out.String(), "reception until 2025-03-01T10:00:00Z") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	printStatus(&out, sess, now.Add(2*time.Hour))
	if !strings.Contains(out.String(), "expired") {
		t.Errorf("expected expired session, got %q", out.String())
	}
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	store := sandbox.NewMemoryStore()
	cfg := &config.Config{SandboxPatients: 4, SandboxSeed: 3}

	if err := seedIfEmpty(ctx, store, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	patients, _ := store.List(ctx, patient.Path)
	if len(patients) != 4 {
		t.Fatalf("expected 4 patients, got %d", len(patients))
	}

	if err := seedIfEmpty(ctx, store, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	patients, _ = store.List(ctx, patient.Path)
	if len(patients) != 4 {
		t.Errorf("a populated store must not be seeded again, got %d patients", len(patients))
	}
}

func TestRunLogin(t *testing.T) {
	api := sandbox.NewServer(sandbox.NewMemoryStore(), sandbox.Config{
		Username: "admin",
		Password: "secret",
		JWT:      auth.JWTConfig{Issuer: "sandbox", SigningKey: []byte("login-test"), TTL: time.Hour},
	}, zerolog.Nop())
	ts := httptest.NewServer(api.Handler())
	defer ts.Close()

	sessionFile := filepath.Join(t.TempDir(), "session.json")
	t.Setenv("API_URL", ts.URL)
	t.Setenv("SESSION_FILE", sessionFile)
	t.Setenv("ENV", "production")

	var out bytes.Buffer
	err := runLogin(context.Background(), &out, "admin", "wrong")
	if err == nil || err.Error() != reauth.MsgInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	if err := runLogin(context.Background(), &out, "admin", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.String() != "Logged in as admin.\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	storage, err := session.NewFileStorage(sessionFile)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	sess := session.NewStore(storage, zerolog.Nop())
	if err := sess.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if sess.Subject() != "admin" {
		t.Errorf("expected persisted session for admin, got %q", sess.Subject())
	}
}
