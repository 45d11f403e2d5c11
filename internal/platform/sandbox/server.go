package sandbox

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain/admin"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/laboratory"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/staff"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/auth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/middleware"
)

// Envelope selects how list responses are wrapped.
type Envelope string

const (
	EnvelopeNone    Envelope = "none"
	EnvelopeData    Envelope = "data"
	EnvelopeResults Envelope = "results"
)

// ParseEnvelope accepts "", "none", "data" and "results".
func ParseEnvelope(s string) (Envelope, error) {
	switch e := Envelope(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EnvelopeNone:
		return EnvelopeNone, nil
	case EnvelopeData, EnvelopeResults:
		return e, nil
	default:
		return "", fmt.Errorf("unknown list envelope %q", s)
	}
}

const tokenPath = "/api/token/"

// Collections are the endpoint paths served under /api/.
var Collections = []string{
	patient.Path,
	laboratory.ClassesPath,
	laboratory.TestsPath,
	laboratory.FormatsPath,
	laboratory.OrdersPath,
	laboratory.ResultsPath,
	laboratory.CommentsPath,
	admin.InsurancesPath,
	admin.VisitTypesPath,
	staff.DepartmentsPath,
	staff.DepartmentGroupsPath,
	staff.DepartmentPermissionsPath,
}

// Config holds the sandbox credentials, token settings and list shape.
type Config struct {
	Username string
	Password string
	JWT      auth.JWTConfig
	Envelope Envelope
}

// Server serves the sandbox API.
type Server struct {
	store  Store
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewServer(store Store, cfg Config, logger zerolog.Logger) *Server {
	if cfg.Envelope == "" {
		cfg.Envelope = EnvelopeNone
	}
	cfg.JWT.Skipper = func(c echo.Context) bool {
		return c.Request().URL.Path == tokenPath
	}
	return &Server{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Handler returns a ready echo instance with the API under /api and the
// seed endpoints under /sandbox.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(s.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.RegisterRoutes(e.Group("/api"))
	NewSeedHandler(s.store, s.logger).RegisterRoutes(e.Group("/sandbox"))
	return e
}

func (s *Server) RegisterRoutes(g *echo.Group) {
	g.Use(auth.JWTMiddleware(s.cfg.JWT))
	g.POST("/token/", s.handleToken)

	for _, path := range Collections {
		collection := path
		base := "/" + strings.TrimSuffix(path, "/")
		g.GET(base+"/", s.handleList(collection))
		g.POST(base+"/", s.handleCreate(collection))
		g.GET(base+"/:id/", s.handleGet(collection))
		g.PUT(base+"/:id/", s.handleUpdate(collection))
		g.DELETE(base+"/:id/", s.handleDelete(collection))
	}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" {
		return detail(c, http.StatusBadRequest, "Username and password are required.")
	}
	if !s.validCredentials(req.Username, req.Password) {
		s.logger.Warn().Str("username", req.Username).Msg("sandbox login rejected")
		return detail(c, http.StatusUnauthorized, "No active account found with the given credentials")
	}

	token, err := auth.IssueToken(s.cfg.JWT, req.Username, s.now())
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Could not issue token.")
	}
	return c.JSON(http.StatusOK, map[string]string{"access": token})
}

func (s *Server) validCredentials(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password))
	return u&p == 1
}

func (s *Server) handleList(collection string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		records, err := s.store.List(ctx, collection)
		if err != nil {
			return s.storeError(c, err)
		}
		if err := s.resolve(ctx, collection, records...); err != nil {
			return s.storeError(c, err)
		}

		switch s.cfg.Envelope {
		case EnvelopeData:
			return c.JSON(http.StatusOK, map[string]interface{}{"data": records})
		case EnvelopeResults:
			return c.JSON(http.StatusOK, map[string]interface{}{
				"count":    len(records),
				"next":     nil,
				"previous": nil,
				"results":  records,
			})
		default:
			return c.JSON(http.StatusOK, records)
		}
	}
}

func (s *Server) handleGet(collection string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		rec, err := s.store.Get(ctx, collection, c.Param("id"))
		if err != nil {
			return s.storeError(c, err)
		}
		if err := s.resolve(ctx, collection, rec); err != nil {
			return s.storeError(c, err)
		}
		return c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handleCreate(collection string) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := bindRecord(c)
		if err != nil {
			return detail(c, http.StatusBadRequest, "Request body must be a JSON object.")
		}
		ctx := c.Request().Context()
		out, err := s.store.Create(ctx, collection, rec)
		if err != nil {
			return s.storeError(c, err)
		}
		if err := s.resolve(ctx, collection, out); err != nil {
			return s.storeError(c, err)
		}
		return c.JSON(http.StatusCreated, out)
	}
}

func (s *Server) handleUpdate(collection string) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := bindRecord(c)
		if err != nil {
			return detail(c, http.StatusBadRequest, "Request body must be a JSON object.")
		}
		ctx := c.Request().Context()
		out, err := s.store.Update(ctx, collection, c.Param("id"), rec)
		if err != nil {
			return s.storeError(c, err)
		}
		if err := s.resolve(ctx, collection, out); err != nil {
			return s.storeError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func (s *Server) handleDelete(collection string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.store.Delete(c.Request().Context(), collection, c.Param("id")); err != nil {
			return s.storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// resolve fills read-only derived fields. Lab tests carry the name of
// their class.
func (s *Server) resolve(ctx context.Context, collection string, records ...Record) error {
	if collection != laboratory.TestsPath || len(records) == 0 {
		return nil
	}
	classes, err := s.store.List(ctx, laboratory.ClassesPath)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(classes))
	for _, cls := range classes {
		name, _ := cls["name"].(string)
		names[idString(cls["id"])] = name
	}
	for _, rec := range records {
		delete(rec, "test_class_name")
		if name, ok := names[idString(rec["test_class"])]; ok {
			rec["test_class_name"] = name
		}
	}
	return nil
}

func (s *Server) storeError(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return detail(c, http.StatusNotFound, "Not found.")
	}
	s.logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("sandbox store failed")
	return detail(c, http.StatusInternalServerError, "A server error occurred.")
}

func bindRecord(c echo.Context) (Record, error) {
	rec := Record{}
	if err := c.Echo().JSONSerializer.Deserialize(c, &rec); err != nil {
		return nil, err
	}
	delete(rec, "id")
	return rec, nil
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"detail": msg})
}
