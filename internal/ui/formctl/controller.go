// Package formctl implements the create/edit/delete modal shared by every
// entity screen. The form holds a draft of field values, checks required
// fields locally and allows a single in-flight request at a time.
package formctl

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
)

const (
	SubmitError          = "An error occurred. Please try again."
	DeleteError          = "An error occurred while deleting. Please try again."
	DefaultConfirmPrompt = "Are you sure you want to delete this record?"

	// SubmitKey is the error key for server-side rejection, kept apart
	// from the field errors.
	SubmitKey = "submit"
)

var (
	ErrNotOpen      = errors.New("form is not open")
	ErrBusy         = errors.New("form is busy")
	ErrNotEditing   = errors.New("form is in create mode")
	ErrNotConfirmed = errors.New("delete has not been confirmed")
	ErrUnknownField = errors.New("unknown field")
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

type Config[T domain.Entity] struct {
	Name   string
	Create func(ctx context.Context, item T) (T, error)
	Update func(ctx context.Context, id domain.ID, item T) (T, error)
	Delete func(ctx context.Context, id domain.ID) error
	// Defaults returns the values of a blank create form.
	Defaults func() T
	// Labels overrides the generated field labels used in messages.
	Labels map[string]string
	// ConfirmPrompt is shown before a delete.
	ConfirmPrompt string
	// OnSuccess is called after a successful create, update or delete,
	// once the form has closed.
	OnSuccess func(item T, op Op)
	// OnUnauthenticated is called when a request fails for lack of a
	// valid session.
	OnUnauthenticated func()
}

// State is a snapshot of the modal.
type State struct {
	Open          bool              `json:"open"`
	Mode          Mode              `json:"mode,omitempty"`
	EditingID     domain.ID         `json:"editing_id,omitempty"`
	Draft         map[string]any    `json:"draft,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
	Loading       bool              `json:"loading"`
	ConfirmDelete bool              `json:"confirm_delete"`
	ConfirmPrompt string            `json:"confirm_prompt,omitempty"`
}

type Controller[T domain.Entity] struct {
	cfg    Config[T]
	fields map[string]bool
	logger zerolog.Logger

	mu            sync.Mutex
	open          bool
	editing       *T
	draft         map[string]any
	errs          map[string]string
	loading       bool
	confirmDelete bool
	// generation changes on every Open and Close so a response that
	// arrives after the form was reopened leaves the new state alone.
	generation int
}

func New[T domain.Entity](cfg Config[T], logger zerolog.Logger) *Controller[T] {
	if cfg.ConfirmPrompt == "" {
		cfg.ConfirmPrompt = DefaultConfirmPrompt
	}
	return &Controller[T]{
		cfg:    cfg,
		fields: fieldNames[T](),
		logger: logger.With().Str("form", cfg.Name).Logger(),
	}
}

// Open shows the form. A nil entity opens a blank create form; otherwise
// the form edits a copy of *entity.
func (c *Controller[T]) Open(entity *T) error {
	var src T
	var editing *T
	if entity != nil {
		src = *entity
		cp := *entity
		editing = &cp
	} else if c.cfg.Defaults != nil {
		src = c.cfg.Defaults()
	}
	draft, err := toDraft(src)
	if err != nil {
		return fmt.Errorf("%s: build draft: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.editing = editing
	c.draft = draft
	c.errs = map[string]string{}
	c.loading = false
	c.confirmDelete = false
	c.generation++
	return nil
}

// Change sets one draft value. It never touches the network.
func (c *Controller[T]) Change(field string, value any) error {
	if field == "id" || !c.fields[field] {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.draft[field] = value
	delete(c.errs, field)
	return nil
}

// Validate returns the required-field errors of the current draft. An
// empty map means the draft is valid.
func (c *Controller[T]) Validate() map[string]string {
	c.mu.Lock()
	draft := maps.Clone(c.draft)
	editing := c.editing
	c.mu.Unlock()

	_, fields := c.build(draft, editing)
	return fields
}

// Submit validates the draft and creates or updates the entity. Invalid
// drafts fail with field errors and no request. On success the form
// closes and OnSuccess runs; on failure the form stays open with its
// draft and a submit-level error.
func (c *Controller[T]) Submit(ctx context.Context) error {
	op := c.cfg.Name + ".Submit"

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	item, fields := c.build(c.draft, c.editing)
	if len(fields) > 0 {
		c.errs = fields
		c.mu.Unlock()
		return apperr.Validation(op, fields)
	}
	var id domain.ID
	if c.editing != nil {
		id = (*c.editing).EntityID()
	}
	c.loading = true
	c.errs = map[string]string{}
	gen := c.generation
	c.mu.Unlock()

	var (
		saved T
		err   error
		kind  = OpCreate
	)
	if id.IsZero() {
		saved, err = c.cfg.Create(ctx, item)
	} else {
		kind = OpUpdate
		saved, err = c.cfg.Update(ctx, id, item)
	}

	if err != nil {
		c.fail(gen, err, SubmitError)
		return err
	}
	c.succeed(gen, saved, kind)
	return nil
}

// RequestDelete starts the confirmation step. Only edit forms can delete.
func (c *Controller[T]) RequestDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.editing == nil {
		return ErrNotEditing
	}
	c.confirmDelete = true
	return nil
}

func (c *Controller[T]) CancelDelete() {
	c.mu.Lock()
	c.confirmDelete = false
	c.mu.Unlock()
}

// Delete removes the edited entity. It requires a prior RequestDelete.
func (c *Controller[T]) Delete(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.editing == nil {
		c.mu.Unlock()
		return ErrNotEditing
	}
	if !c.confirmDelete {
		c.mu.Unlock()
		return ErrNotConfirmed
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	item := *c.editing
	c.loading = true
	c.confirmDelete = false
	gen := c.generation
	c.mu.Unlock()

	if err := c.cfg.Delete(ctx, item.EntityID()); err != nil {
		c.fail(gen, err, DeleteError)
		return err
	}
	c.succeed(gen, item, OpDelete)
	return nil
}

// Close hides the form and discards the draft.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Open:          c.open,
		Draft:         maps.Clone(c.draft),
		Errors:        maps.Clone(c.errs),
		Loading:       c.loading,
		ConfirmDelete: c.confirmDelete,
	}
	if c.open {
		s.Mode = ModeCreate
		if c.editing != nil {
			s.Mode = ModeEdit
			s.EditingID = (*c.editing).EntityID()
		}
	}
	if c.confirmDelete {
		s.ConfirmPrompt = c.cfg.ConfirmPrompt
	}
	return s
}

// build decodes draft over base (or a zero value) and checks required
// fields.
func (c *Controller[T]) build(draft map[string]any, base *T) (T, map[string]string) {
	var item T
	if base != nil {
		item = *base
	}
	if err := fromDraft(draft, &item); err != nil {
		c.logger.Debug().Err(err).Msg("draft does not decode")
		return item, map[string]string{SubmitKey: "Please check the highlighted values and try again."}
	}
	fields, err := requiredErrors(item, c.cfg.Labels)
	if err != nil {
		return item, map[string]string{SubmitKey: SubmitError}
	}
	return item, fields
}

func (c *Controller[T]) fail(gen int, err error, fallback string) {
	auth := apperr.IsAuth(err)

	c.mu.Lock()
	if gen == c.generation {
		c.loading = false
		c.errs = map[string]string{SubmitKey: apperr.Message(err, fallback)}
	}
	c.mu.Unlock()

	c.logger.Error().Err(err).Msg("form request failed")
	if auth && c.cfg.OnUnauthenticated != nil {
		c.cfg.OnUnauthenticated()
	}
}

func (c *Controller[T]) succeed(gen int, item T, op Op) {
	c.mu.Lock()
	if gen == c.generation {
		c.resetLocked()
	}
	c.mu.Unlock()

	c.logger.Info().Str("op", string(op)).Str("id", item.EntityID().String()).Msg("form saved")
	if c.cfg.OnSuccess != nil {
		c.cfg.OnSuccess(item, op)
	}
}

func (c *Controller[T]) resetLocked() {
	c.open = false
	c.editing = nil
	c.draft = nil
	c.errs = nil
	c.loading = false
	c.confirmDelete = false
	c.generation++
}
