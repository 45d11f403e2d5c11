// Package reauth implements the login prompt shown when the session
// expires mid-use. The flow is a small state machine:
//
//	Hidden -> Visible -> Submitting -> Hidden   (credentials accepted)
//	                                -> Visible  (credentials rejected)
//
// Only one prompt is live at a time. Failed requests are not replayed;
// screens re-fetch on their own once the prompt closes.
package reauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/events"
)

type State int

const (
	StateHidden State = iota
	StateVisible
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateVisible:
		return "visible"
	case StateSubmitting:
		return "submitting"
	default:
		return "hidden"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "hidden":
		*s = StateHidden
	case "visible":
		*s = StateVisible
	case "submitting":
		*s = StateSubmitting
	default:
		return fmt.Errorf("unknown reauth state %q", text)
	}
	return nil
}

const (
	MsgInvalidCredentials = "Invalid username/email or password"
	MsgMissingCredentials = "Please enter your username and password"
	msgLoginFailed        = "Login failed. Please try again."
)

var (
	// ErrNotVisible is returned by Submit when there is no prompt to submit.
	ErrNotVisible = errors.New("login prompt is not visible")
	// ErrInFlight is returned by Submit while a previous submit is pending.
	ErrInFlight = errors.New("login already in progress")
)

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// TokenSink receives the new token on success.
type TokenSink interface {
	SetToken(token string) error
}

// Snapshot is the externally visible state of the prompt.
type Snapshot struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
	// Prompts counts Hidden -> Visible transitions since creation.
	Prompts int `json:"prompts"`
}

type Flow struct {
	mu        sync.Mutex
	state     State
	errMsg    string
	prompts   int
	nextID    int
	listeners map[int]func(Snapshot)
	detach    func()

	auth   Authenticator
	tokens TokenSink
	logger zerolog.Logger
}

func New(auth Authenticator, tokens TokenSink, logger zerolog.Logger) *Flow {
	return &Flow{
		auth:      auth,
		tokens:    tokens,
		logger:    logger,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Attach subscribes the flow to the session-expired signal. Attaching
// again replaces the previous subscription.
func (f *Flow) Attach(n *events.Notifier) {
	unsub := n.Subscribe(func() { f.Show() })
	f.mu.Lock()
	prev := f.detach
	f.detach = unsub
	f.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (f *Flow) Detach() {
	f.mu.Lock()
	unsub := f.detach
	f.detach = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Show makes the prompt visible. It is a no-op unless the prompt is
// hidden, so a burst of 401s produces a single prompt. Reports whether
// the prompt was opened by this call.
func (f *Flow) Show() bool {
	f.mu.Lock()
	if f.state != StateHidden {
		f.mu.Unlock()
		return false
	}
	f.state = StateVisible
	f.errMsg = ""
	f.prompts++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.logger.Info().Int("prompts", snap.Prompts).Msg("login prompt shown")
	f.notify(snap)
	return true
}

// Dismiss closes the prompt without logging in. Ignored while submitting.
func (f *Flow) Dismiss() {
	f.mu.Lock()
	if f.state != StateVisible {
		f.mu.Unlock()
		return
	}
	f.state = StateHidden
	f.errMsg = ""
	snap := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)
}

// Submit exchanges the credentials. On success the token is stored and
// the prompt hides; on failure the prompt stays visible with a message.
func (f *Flow) Submit(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)

	f.mu.Lock()
	switch f.state {
	case StateHidden:
		f.mu.Unlock()
		return ErrNotVisible
	case StateSubmitting:
		f.mu.Unlock()
		return ErrInFlight
	}
	if username == "" || password == "" {
		f.errMsg = MsgMissingCredentials
		snap := f.snapshotLocked()
		f.mu.Unlock()
		f.notify(snap)
		return apperr.Validation("reauth.Submit", map[string]string{"username": MsgMissingCredentials})
	}
	f.state = StateSubmitting
	f.errMsg = ""
	snap := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)

	token, err := f.auth.Login(ctx, username, password)
	if err == nil {
		err = f.tokens.SetToken(token)
	}

	f.mu.Lock()
	if err != nil {
		f.state = StateVisible
		f.errMsg = LoginMessage(err)
	} else {
		f.state = StateHidden
		f.errMsg = ""
	}
	snap = f.snapshotLocked()
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn().Err(err).Str("username", username).Msg("re-authentication failed")
	} else {
		f.logger.Info().Str("username", username).Msg("re-authenticated")
	}
	f.notify(snap)
	return err
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// OnChange registers fn to be called after every state transition.
func (f *Flow) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Flow) snapshotLocked() Snapshot {
	return Snapshot{State: f.state, Error: f.errMsg, Prompts: f.prompts}
}

func (f *Flow) notify(snap Snapshot) {
	f.mu.Lock()
	fns := make([]func(Snapshot), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// BadCredentials reports whether a token request failed because the
// credentials were rejected. The token endpoint answers 401 or 400.
func BadCredentials(err error) bool {
	var appErr *apperr.Error
	return errors.As(err, &appErr) && (appErr.Status == http.StatusUnauthorized || appErr.Status == http.StatusBadRequest)
}

// LoginMessage is the message shown when a login attempt fails.
func LoginMessage(err error) string {
	if BadCredentials(err) {
		return MsgInvalidCredentials
	}
	return apperr.Message(err, msgLoginFailed)
}
