package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/platform/session"
)

func TestRequireSession_RedirectsWithoutToken(t *testing.T) {
	store := session.NewStore(session.NewMemoryStorage(), zerolog.Nop())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/home/patients?page=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := RequireSession(store)(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "patients")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if called {
		t.Error("protected handler must not run without a session")
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth/login?next=%2Fhome%2Fpatients%3Fpage%3D2" {
		t.Errorf("unexpected location %q", loc)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected no protected content, got %q", rec.Body.String())
	}
}

func TestRequireSession_PassesWithToken(t *testing.T) {
	store := session.NewStore(session.NewMemoryStorage(), zerolog.Nop())
	store.SetToken("abc")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/home/dashboard", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireSession(store)(func(c echo.Context) error {
		return c.String(http.StatusOK, "dashboard")
	})
	h(c)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireSession_LogoutThenRedirect(t *testing.T) {
	store := session.NewStore(session.NewMemoryStorage(), zerolog.Nop())
	store.SetToken("abc")
	store.Clear()

	if store.IsAuthenticated() {
		t.Fatal("expected logged out store")
	}
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/home/dashboard", nil), rec)

	RequireSession(store)(func(c echo.Context) error {
		return c.String(http.StatusOK, "dashboard")
	})(c)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected redirect after logout, got %d", rec.Code)
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"/home/patients":       "/home/patients",
		"":                     "/home/dashboard",
		"//evil.example.com":   "/home/dashboard",
		"https://evil.example": "/home/dashboard",
		"/\\evil.example.com":  "/home/dashboard",
		"home/patients":        "/home/dashboard",
	}
	for in, want := range tests {
		if got := SafeNext(in, "/home/dashboard"); got != want {
			t.Errorf("SafeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJWTMiddleware(t *testing.T) {
	cfg := JWTConfig{Issuer: "sandbox", SigningKey: []byte("secret"), TTL: time.Hour}
	valid, err := IssueToken(cfg, "admin", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expired, _ := IssueToken(cfg, "admin", time.Now().Add(-2*time.Hour))
	otherKey, _ := IssueToken(JWTConfig{SigningKey: []byte("other"), TTL: time.Hour}, "admin", time.Now())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/patients/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := JWTMiddleware(cfg)(func(c echo.Context) error {
				if UserID(c) != "admin" {
					t.Errorf("expected subject admin, got %q", UserID(c))
				}
				return c.NoContent(http.StatusOK)
			})
			h(c)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{SigningKey: []byte("secret"), Skipper: func(c echo.Context) bool {
		return c.Request().URL.Path == "/api/token/"
	}}
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/token/", nil), rec)

	JWTMiddleware(cfg)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	if rec.Code != http.StatusOK {
		t.Errorf("expected skipped route to pass, got %d", rec.Code)
	}
}
