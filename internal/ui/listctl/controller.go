// Package listctl implements the list screen pattern shared by every
// entity: fetch, debounced search, grouping, pagination and optimistic
// local patches pending the next refetch.
package listctl

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/romdo/go-debounce"
	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
	"github.com/tulusdeveloper/new-medical-ui/pkg/pagination"
)

const (
	DefaultDebounce   = 300 * time.Millisecond
	DefaultFetchError = "Failed to fetch records. Please try again later."
	DeleteError       = "An error occurred while deleting. Please try again."
)

var ErrClosed = errors.New("list controller is closed")

type Status string

const (
	StatusLoading         Status = "loading"
	StatusError           Status = "error"
	StatusUnauthenticated Status = "unauthenticated"
	// StatusEmpty means the collection itself has no records.
	StatusEmpty Status = "empty"
	// StatusNoMatches means records exist but none match the search term.
	StatusNoMatches Status = "no_matches"
	StatusReady     Status = "ready"
)

// Config parameterizes a controller for one entity type.
type Config[T domain.Entity] struct {
	// Name identifies the list in logs, e.g. "patients".
	Name string
	// Fetch returns the whole collection.
	Fetch func(ctx context.Context) ([]T, error)
	// Delete removes one record. Remove fails when it is nil.
	Delete func(ctx context.Context, item T) error
	// SearchFields returns the values the search term is matched against.
	SearchFields func(item T) []string
	// GroupKey buckets the visible items. Nil disables grouping.
	GroupKey func(item T) string
	// SortGroups orders buckets by key; otherwise first-occurrence order.
	SortGroups bool
	// PageSize enables pagination when positive.
	PageSize int
	// Debounce is the search quiet period. Zero means DefaultDebounce.
	Debounce time.Duration
	// FetchError is the message shown when a load fails.
	FetchError string
	// EmptyMessage is shown when a search matches nothing.
	EmptyMessage string
	// OnUnauthenticated is called instead of retrying when a load or
	// delete fails for lack of a valid session.
	OnUnauthenticated func()
	// OnEdit receives the item selected for editing.
	OnEdit func(item T)
}

type Group[T any] struct {
	Key   string `json:"key"`
	Items []T    `json:"items"`
}

// View is a consistent snapshot of the list for rendering.
type View[T any] struct {
	Status     Status          `json:"status"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	SearchTerm string          `json:"search_term"`
	Items      []T             `json:"items"`
	Groups     []Group[T]      `json:"groups,omitempty"`
	Page       pagination.Info `json:"page"`
}

type Controller[T domain.Entity] struct {
	cfg    Config[T]
	logger zerolog.Logger

	debounced      func()
	cancelDebounce func()

	mu              sync.Mutex
	items           []T
	filtered        []T
	term            string
	pending         string
	page            int
	inflight        int
	loaded          bool
	errMsg          string
	unauthenticated bool
	closed          bool
	recomputes      int
}

func New[T domain.Entity](cfg Config[T], logger zerolog.Logger) *Controller[T] {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.FetchError == "" {
		cfg.FetchError = DefaultFetchError
	}
	c := &Controller[T]{
		cfg:    cfg,
		logger: logger.With().Str("list", cfg.Name).Logger(),
		page:   1,
	}
	c.debounced, c.cancelDebounce = debounce.New(cfg.Debounce, c.applySearch)
	return c
}

// Load replaces the items with the server's collection. On failure the
// previous items are kept and an error message is set. Overlapping loads
// are not deduplicated; the last response to arrive wins.
func (c *Controller[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight++
	c.mu.Unlock()

	items, err := c.cfg.Fetch(ctx)

	c.mu.Lock()
	c.inflight--
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		auth := apperr.IsAuth(err)
		c.unauthenticated = auth
		c.errMsg = apperr.Message(err, c.cfg.FetchError)
		c.mu.Unlock()

		c.logger.Error().Err(err).Msg("failed to load list")
		if auth && c.cfg.OnUnauthenticated != nil {
			c.cfg.OnUnauthenticated()
		}
		return err
	}
	if items == nil {
		items = []T{}
	}
	c.items = items
	c.loaded = true
	c.errMsg = ""
	c.unauthenticated = false
	c.refilterLocked()
	n := len(items)
	c.mu.Unlock()

	c.logger.Debug().Int("count", n).Msg("list loaded")
	return nil
}

// SetSearchTerm records the term and recomputes the visible items once
// input has been quiet for the debounce period. Applying a term resets
// the page to 1.
func (c *Controller[T]) SetSearchTerm(term string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = term
	c.mu.Unlock()
	c.debounced()
}

// ClearSearch drops the term immediately, without waiting.
func (c *Controller[T]) ClearSearch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = ""
	c.term = ""
	c.page = 1
	c.refilterLocked()
}

func (c *Controller[T]) applySearch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.term = c.pending
	c.page = 1
	c.refilterLocked()
}

// SetPage moves to page n, clamped to the available pages.
func (c *Controller[T]) SetPage(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = pagination.Clamp(n, c.totalPagesLocked())
	return c.page
}

func (c *Controller[T]) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalPagesLocked()
}

// Find returns the item with the given id.
func (c *Controller[T]) Find(id domain.ID) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Edit hands item to the form controller.
func (c *Controller[T]) Edit(item T) {
	if c.cfg.OnEdit != nil {
		c.cfg.OnEdit(item)
	}
}

// Remove deletes item on the server and reloads on success.
func (c *Controller[T]) Remove(ctx context.Context, item T) error {
	if c.cfg.Delete == nil {
		return apperr.New(apperr.KindRequestFailed, c.cfg.Name+".Remove", errors.New("delete not supported"))
	}
	if err := c.cfg.Delete(ctx, item); err != nil {
		auth := apperr.IsAuth(err)
		c.mu.Lock()
		c.errMsg = apperr.Message(err, DeleteError)
		c.unauthenticated = auth
		c.mu.Unlock()

		c.logger.Error().Err(err).Str("id", item.EntityID().String()).Msg("failed to delete")
		if auth && c.cfg.OnUnauthenticated != nil {
			c.cfg.OnUnauthenticated()
		}
		return err
	}
	return c.Load(ctx)
}

// Upsert patches item into the local list: replaced in place when an
// item with the same id exists, appended otherwise. The next Load
// reconciles with the server.
func (c *Controller[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := item.EntityID()
	i := slices.IndexFunc(c.items, func(it T) bool {
		return !id.IsZero() && it.EntityID() == id
	})
	if i >= 0 {
		c.items[i] = item
	} else {
		c.items = append(c.items, item)
	}
	c.refilterLocked()
}

func (c *Controller[T]) View() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View[T]{
		Loading:    c.inflight > 0,
		Error:      c.errMsg,
		SearchTerm: c.term,
	}

	page := c.filtered
	if c.cfg.PageSize > 0 {
		c.page = pagination.Clamp(c.page, c.totalPagesLocked())
		page = pagination.Slice(c.filtered, c.page, c.cfg.PageSize)
		v.Page = pagination.NewInfo(c.page, c.cfg.PageSize, len(c.filtered))
	} else {
		v.Page = pagination.NewInfo(1, len(c.filtered), len(c.filtered))
	}
	v.Items = slices.Clone(page)
	if v.Items == nil {
		v.Items = []T{}
	}
	if c.cfg.GroupKey != nil {
		v.Groups = group(v.Items, c.cfg.GroupKey, c.cfg.SortGroups)
	}

	switch {
	case c.unauthenticated:
		v.Status = StatusUnauthenticated
	case c.errMsg != "":
		v.Status = StatusError
	case !c.loaded:
		v.Status = StatusLoading
	case len(c.items) == 0:
		v.Status = StatusEmpty
	case len(c.filtered) == 0:
		v.Status = StatusNoMatches
		v.Message = c.cfg.EmptyMessage
	default:
		v.Status = StatusReady
	}
	return v
}

// Close stops the debouncer. Responses that arrive afterwards are dropped.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancelDebounce()
}

func (c *Controller[T]) totalPagesLocked() int {
	if c.cfg.PageSize <= 0 {
		return 1
	}
	return pagination.TotalPages(len(c.filtered), c.cfg.PageSize)
}

func (c *Controller[T]) refilterLocked() {
	c.recomputes++
	c.filtered = Filter(c.items, c.term, c.cfg.SearchFields)
	if c.cfg.GroupKey != nil && c.cfg.SortGroups {
		key := c.cfg.GroupKey
		slices.SortStableFunc(c.filtered, func(a, b T) int {
			return strings.Compare(key(a), key(b))
		})
	}
}

// Filter keeps the items where any search field contains term, ignoring
// case. An empty term keeps everything. The input is not modified.
func Filter[T any](items []T, term string, fields func(T) []string) []T {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if term == "" || fields == nil || matches(fields(it), term) {
			out = append(out, it)
		}
	}
	return out
}

func matches(values []string, term string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func group[T any](items []T, key func(T) string, sorted bool) []Group[T] {
	groups := []Group[T]{}
	index := map[string]int{}
	for _, it := range items {
		k := key(it)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[T]{Key: k})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	if sorted {
		slices.SortStableFunc(groups, func(a, b Group[T]) int {
			return strings.Compare(a.Key, b.Key)
		})
	}
	return groups
}
