package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const LoginPath = "/auth/login"

// Session is the part of the session store the guard reads.
type Session interface {
	IsAuthenticated() bool
	Subject() string
}

// RequireSession guards the screens behind it. Without a stored token the
// screen handler never runs and the caller is redirected to the login
// route, with the original path in "next". This is a client-side gate;
// the API enforces authorization on its own.
func RequireSession(s Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.IsAuthenticated() {
				target := LoginPath + "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
				return c.Redirect(http.StatusSeeOther, target)
			}
			if sub := s.Subject(); sub != "" {
				c.Set("username", sub)
			}
			return next(c)
		}
	}
}

// SafeNext returns next when it is a local path and fallback otherwise,
// so the login screen cannot redirect off-site.
func SafeNext(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
