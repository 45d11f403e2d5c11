package console

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/reauth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/websocket"
	"github.com/tulusdeveloper/new-medical-ui/internal/ui/formctl"
	"github.com/tulusdeveloper/new-medical-ui/internal/ui/listctl"
	"github.com/tulusdeveloper/new-medical-ui/pkg/pagination"
)

var notFoundMessage = apperr.Message(&apperr.Error{Kind: apperr.KindNotFound}, "")

// screen is the type-erased view of a Screen the App keeps.
type screen interface {
	Name() string
	RegisterRoutes(g *echo.Group)
	Load(ctx context.Context) error
	Close()
}

// ScreenConfig describes one entity screen: a list with its modal form.
type ScreenConfig[T domain.Entity] struct {
	Name string
	List listctl.Config[T]
	Form formctl.Config[T]
	// ReloadAfterSave refetches the list after a create or update instead
	// of relying on the local patch alone.
	ReloadAfterSave bool
	// ReloadAfterUpdate refetches after an update only; creates keep the
	// local append.
	ReloadAfterUpdate bool
}

// Screen couples a list controller and a form controller and serves them
// as JSON view models.
type Screen[T domain.Entity] struct {
	name   string
	list   *listctl.Controller[T]
	form   *formctl.Controller[T]
	reload map[formctl.Op]bool
	flow   *reauth.Flow
	hub    *websocket.Hub
	logger zerolog.Logger
}

// NewScreen builds a screen. Saves and deletes are published on hub under
// the screen name; hub may be nil.
func NewScreen[T domain.Entity](cfg ScreenConfig[T], flow *reauth.Flow, hub *websocket.Hub, logger zerolog.Logger) *Screen[T] {
	s := &Screen[T]{
		name: cfg.Name,
		reload: map[formctl.Op]bool{
			formctl.OpCreate: cfg.ReloadAfterSave,
			formctl.OpUpdate: cfg.ReloadAfterSave || cfg.ReloadAfterUpdate,
		},
		flow:   flow,
		hub:    hub,
		logger: logger.With().Str("screen", cfg.Name).Logger(),
	}
	if cfg.List.Name == "" {
		cfg.List.Name = cfg.Name
	}
	if cfg.Form.Name == "" {
		cfg.Form.Name = cfg.Name
	}

	cfg.List.OnEdit = func(item T) {
		if err := s.form.Open(&item); err != nil {
			s.logger.Error().Err(err).Msg("failed to open form")
		}
	}
	onSuccess := cfg.Form.OnSuccess
	cfg.Form.OnSuccess = func(item T, op formctl.Op) {
		if op != formctl.OpDelete {
			s.list.Upsert(item)
		}
		s.publish(op, item)
		if onSuccess != nil {
			onSuccess(item, op)
		}
	}

	s.list = listctl.New(cfg.List, logger)
	s.form = formctl.New(cfg.Form, logger)
	return s
}

func (s *Screen[T]) Name() string { return s.name }

func (s *Screen[T]) List() *listctl.Controller[T] { return s.list }

func (s *Screen[T]) Form() *formctl.Controller[T] { return s.form }

func (s *Screen[T]) Load(ctx context.Context) error { return s.list.Load(ctx) }

func (s *Screen[T]) Close() { s.list.Close() }

func (s *Screen[T]) RegisterRoutes(g *echo.Group) {
	g.GET("", s.handleShow)
	g.GET("/view", s.handleView)
	g.PUT("/search", s.handleSearch)
	g.DELETE("/search", s.handleClearSearch)
	g.POST("/:id/edit", s.handleEdit)
	g.DELETE("/:id", s.handleRemove)

	g.GET("/form", s.handleForm)
	g.POST("/form", s.handleOpen)
	g.PATCH("/form", s.handleChange)
	g.DELETE("/form", s.handleCloseForm)
	g.POST("/form/submit", s.handleSubmit)
	g.POST("/form/delete", s.handleDelete)
	g.DELETE("/form/delete", s.handleCancelDelete)
}

// publish announces a change as "record.created", "record.updated" or
// "record.deleted".
func (s *Screen[T]) publish(op formctl.Op, item T) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(s.name, "record."+string(op)+"d", item.EntityID().String(), item)
}

// ScreenResponse is the JSON body of every screen route.
type ScreenResponse[T any] struct {
	View   listctl.View[T] `json:"view"`
	Form   formctl.State   `json:"form"`
	Reauth reauth.Snapshot `json:"reauth"`
	Error  string          `json:"error,omitempty"`
}

func (s *Screen[T]) respond(c echo.Context, status int, errMsg string) error {
	return c.JSON(status, ScreenResponse[T]{
		View:   s.list.View(),
		Form:   s.form.State(),
		Reauth: s.flow.Snapshot(),
		Error:  errMsg,
	})
}

// fail answers an operation error. Without a session the caller goes
// back to the login route; an expired session answers 401 with the
// reauthentication prompt in the body.
func (s *Screen[T]) fail(c echo.Context, err error, fallback string) error {
	switch {
	case apperr.KindOf(err) == apperr.KindUnauthenticated:
		return redirectToLogin(c)
	case errors.Is(err, formctl.ErrBusy), errors.Is(err, formctl.ErrNotOpen),
		errors.Is(err, formctl.ErrNotEditing), errors.Is(err, formctl.ErrNotConfirmed):
		return s.respond(c, http.StatusConflict, err.Error())
	case errors.Is(err, formctl.ErrUnknownField):
		return s.respond(c, http.StatusBadRequest, err.Error())
	}
	return s.respond(c, apperr.HTTPStatus(err), apperr.Message(err, fallback))
}

// handleShow is the screen mount: it fetches the collection and renders.
func (s *Screen[T]) handleShow(c echo.Context) error {
	if err := s.list.Load(c.Request().Context()); err != nil {
		return s.fail(c, err, listctl.DefaultFetchError)
	}
	s.movePage(c)
	return s.respond(c, http.StatusOK, "")
}

// handleView renders without fetching, optionally moving to ?page=N.
func (s *Screen[T]) handleView(c echo.Context) error {
	s.movePage(c)
	return s.respond(c, http.StatusOK, "")
}

type searchRequest struct {
	Term string `json:"term"`
}

// handleSearch records a keystroke. The filter applies after the quiet
// period, so the response still shows the previous term.
func (s *Screen[T]) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return s.respond(c, http.StatusBadRequest, "invalid search request")
	}
	s.list.SetSearchTerm(req.Term)
	return s.respond(c, http.StatusAccepted, "")
}

func (s *Screen[T]) handleClearSearch(c echo.Context) error {
	s.list.ClearSearch()
	return s.respond(c, http.StatusOK, "")
}

func (s *Screen[T]) handleEdit(c echo.Context) error {
	return s.edit(c, domain.ID(c.Param("id")))
}

// handleRemove deletes straight from the list. It needs ?confirm=true;
// without it the answer carries the prompt to show.
func (s *Screen[T]) handleRemove(c echo.Context) error {
	item, ok := s.list.Find(domain.ID(c.Param("id")))
	if !ok {
		return s.respond(c, http.StatusNotFound, notFoundMessage)
	}
	if !confirmed(c) {
		return c.JSON(http.StatusConflict, map[string]string{"confirm": formctl.DefaultConfirmPrompt})
	}
	if err := s.list.Remove(c.Request().Context(), item); err != nil {
		return s.fail(c, err, listctl.DeleteError)
	}
	s.publish(formctl.OpDelete, item)
	return s.respond(c, http.StatusOK, "")
}

func (s *Screen[T]) handleForm(c echo.Context) error {
	return s.respond(c, http.StatusOK, "")
}

type openRequest struct {
	ID domain.ID `json:"id"`
}

// handleOpen opens a blank create form, or an edit form when the body
// names an id.
func (s *Screen[T]) handleOpen(c echo.Context) error {
	var req openRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return s.respond(c, http.StatusBadRequest, "invalid form request")
		}
	}
	if req.ID.IsZero() {
		if err := s.form.Open(nil); err != nil {
			return s.fail(c, err, formctl.SubmitError)
		}
		return s.respond(c, http.StatusOK, "")
	}
	return s.edit(c, req.ID)
}

func (s *Screen[T]) edit(c echo.Context, id domain.ID) error {
	item, ok := s.list.Find(id)
	if !ok {
		return s.respond(c, http.StatusNotFound, notFoundMessage)
	}
	s.list.Edit(item)
	return s.respond(c, http.StatusOK, "")
}

// handleChange applies field changes in name order.
func (s *Screen[T]) handleChange(c echo.Context) error {
	changes := map[string]interface{}{}
	if err := c.Bind(&changes); err != nil {
		return s.respond(c, http.StatusBadRequest, "invalid form changes")
	}
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := s.form.Change(k, changes[k]); err != nil {
			return s.fail(c, err, formctl.SubmitError)
		}
	}
	return s.respond(c, http.StatusOK, "")
}

func (s *Screen[T]) handleCloseForm(c echo.Context) error {
	s.form.Close()
	return s.respond(c, http.StatusOK, "")
}

func (s *Screen[T]) handleSubmit(c echo.Context) error {
	ctx := c.Request().Context()
	op := formctl.OpCreate
	if s.form.State().Mode == formctl.ModeEdit {
		op = formctl.OpUpdate
	}
	if err := s.form.Submit(ctx); err != nil {
		return s.fail(c, err, formctl.SubmitError)
	}
	if s.reload[op] {
		if err := s.list.Load(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("reload after save failed")
		}
	}
	return s.respond(c, http.StatusOK, "")
}

type deleteRequest struct {
	Confirm bool `json:"confirm"`
}

// handleDelete is the two-step delete of the open form. The first call
// (confirm false) shows the prompt; confirm true deletes and reloads. A
// confirm with no prompt showing answers 409 and shows the prompt instead.
func (s *Screen[T]) handleDelete(c echo.Context) error {
	var req deleteRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return s.respond(c, http.StatusBadRequest, "invalid delete request")
		}
	}
	if !req.Confirm && !confirmed(c) {
		if err := s.form.RequestDelete(); err != nil {
			return s.fail(c, err, formctl.DeleteError)
		}
		return s.respond(c, http.StatusOK, "")
	}

	ctx := c.Request().Context()
	if !s.form.State().ConfirmDelete {
		if err := s.form.RequestDelete(); err != nil {
			return s.fail(c, err, formctl.DeleteError)
		}
		return s.respond(c, http.StatusConflict, formctl.ErrNotConfirmed.Error())
	}
	if err := s.form.Delete(ctx); err != nil {
		return s.fail(c, err, formctl.DeleteError)
	}
	if err := s.list.Load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("reload after delete failed")
	}
	return s.respond(c, http.StatusOK, "")
}

func (s *Screen[T]) handleCancelDelete(c echo.Context) error {
	s.form.CancelDelete()
	return s.respond(c, http.StatusOK, "")
}

// movePage applies ?page=N when present. Out-of-range pages are clamped.
func (s *Screen[T]) movePage(c echo.Context) {
	if c.QueryParam("page") == "" {
		return
	}
	s.list.SetPage(pagination.FromContext(c, 0).Page)
}

func confirmed(c echo.Context) bool {
	v := strings.ToLower(c.QueryParam("confirm"))
	if v == "" {
		v = strings.ToLower(c.FormValue("confirm"))
	}
	return v == "true" || v == "1" || v == "yes"
}
