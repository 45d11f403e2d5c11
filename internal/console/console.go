// Package console serves the back-office screens as JSON view models on a
// local HTTP port. It owns the client session and drives the list and form
// controllers of every entity screen against the hospital API.
package console

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/admin"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/laboratory"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/staff"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/auth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/events"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/gateway"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/middleware"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/reauth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/reporting"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/session"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/websocket"
	"github.com/tulusdeveloper/new-medical-ui/internal/ui/formctl"
	"github.com/tulusdeveloper/new-medical-ui/internal/ui/listctl"
)

const (
	// HomePath is where a successful login lands without a "next".
	HomePath      = "/home/dashboard"
	LogoutPrompt  = "Are you sure you want to log out?"
	loginFailed   = "Login failed. Please try again."
	screensPrefix = "/home"
)

// Options tune the console. Zero values fall back to the package
// defaults of the components involved.
type Options struct {
	APIURL          string
	HTTPTimeout     time.Duration
	RequestTimeout  time.Duration
	SearchDebounce  time.Duration
	PatientPageSize int
	// HTTPClient replaces the gateway transport, mostly for tests.
	HTTPClient *http.Client
}

// Screens are the entity screens of the console.
type Screens struct {
	Patients    *Screen[patient.Patient]
	LabClasses  *Screen[laboratory.TestClass]
	LabTests    *Screen[laboratory.Test]
	LabFormats  *Screen[laboratory.Format]
	Insurances  *Screen[admin.Insurance]
	VisitTypes  *Screen[admin.VisitType]
	Departments *Screen[staff.Department]
}

func (s Screens) all() []screen {
	return []screen{s.Patients, s.LabClasses, s.LabTests, s.LabFormats, s.Insurances, s.VisitTypes, s.Departments}
}

type App struct {
	session *session.Store
	expired *events.Notifier
	client  *gateway.Client
	flow    *reauth.Flow
	reports *reporting.Service
	hub     *websocket.Hub
	unwatch func()
	screens Screens
	opts    Options
	logger  zerolog.Logger
}

// New wires the console around an initialized session store.
func New(sess *session.Store, opts Options, logger zerolog.Logger) *App {
	expired := events.NewNotifier()

	var gwOpts []gateway.Option
	if opts.HTTPTimeout > 0 {
		gwOpts = append(gwOpts, gateway.WithTimeout(opts.HTTPTimeout))
	}
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(opts.HTTPClient))
	}
	client := gateway.New(opts.APIURL, sess, expired, logger, gwOpts...)

	flow := reauth.New(client, sess, logger)
	flow.Attach(expired)

	a := &App{
		session: sess,
		expired: expired,
		client:  client,
		flow:    flow,
		hub:     websocket.NewHub(logger),
		opts:    opts,
		logger:  logger,
	}
	a.unwatch = flow.OnChange(func(snap reauth.Snapshot) {
		a.hub.Publish(websocket.TopicReauth, "reauth.state", "", snap)
	})
	a.screens = a.buildScreens()
	a.reports = reporting.NewService(a.reportSources(), logger)
	return a
}

func (a *App) buildScreens() Screens {
	lab := laboratory.NewResources(a.client)
	adm := admin.NewResources(a.client)
	stf := staff.NewResources(a.client)
	patients := patient.NewResource(a.client)
	debounce := a.opts.SearchDebounce

	return Screens{
		Patients: NewScreen(ScreenConfig[patient.Patient]{
			Name: "patients",
			List: listctl.Config[patient.Patient]{
				Fetch:        patients.List,
				Delete:       func(ctx context.Context, p patient.Patient) error { return patients.Delete(ctx, p.ID) },
				SearchFields: patient.SearchFields,
				GroupKey:     patient.GroupKey,
				SortGroups:   true,
				PageSize:     a.opts.PatientPageSize,
				Debounce:     debounce,
				FetchError:   "Failed to fetch patients. Please try again later.",
				EmptyMessage: "No patients found matching your search.",
			},
			Form:              formCRUD(patients, nil),
			ReloadAfterUpdate: true,
		}, a.flow, a.hub, a.logger),

		LabClasses: NewScreen(ScreenConfig[laboratory.TestClass]{
			Name: "laboratory/lab-test-classes",
			List: listctl.Config[laboratory.TestClass]{
				Fetch:        lab.Classes.List,
				Delete:       func(ctx context.Context, c laboratory.TestClass) error { return lab.Classes.Delete(ctx, c.ID) },
				SearchFields: laboratory.ClassSearchFields,
				GroupKey:     laboratory.ClassGroupKey,
				Debounce:     debounce,
				FetchError:   "Failed to fetch lab test classes. Please try again later.",
				EmptyMessage: laboratory.NoClassesMessage,
			},
			Form: withPrompt(formCRUD(lab.Classes, laboratory.NewTestClass), laboratory.ClassDeletePrompt),
			// The class list is reloaded after every save.
			ReloadAfterSave: true,
		}, a.flow, a.hub, a.logger),

		LabTests: NewScreen(ScreenConfig[laboratory.Test]{
			Name: "laboratory/lab-tests",
			List: listctl.Config[laboratory.Test]{
				Fetch:        lab.Tests.List,
				Delete:       func(ctx context.Context, t laboratory.Test) error { return lab.Tests.Delete(ctx, t.ID) },
				SearchFields: laboratory.LabTestSearchFields,
				GroupKey:     laboratory.LabTestGroupKey,
				Debounce:     debounce,
				FetchError:   "Failed to fetch lab tests. Please try again later.",
				EmptyMessage: laboratory.NoTestsMessage,
			},
			Form:            withPrompt(formCRUD(lab.Tests, laboratory.NewTest), laboratory.TestDeletePrompt),
			ReloadAfterSave: true,
		}, a.flow, a.hub, a.logger),

		LabFormats: NewScreen(ScreenConfig[laboratory.Format]{
			Name: "laboratory/lab-test-formats",
			List: listctl.Config[laboratory.Format]{
				Fetch:        lab.Formats.List,
				Delete:       func(ctx context.Context, f laboratory.Format) error { return lab.Formats.Delete(ctx, f.ID) },
				SearchFields: laboratory.FormatSearchFields,
				Debounce:     debounce,
			},
			Form: formCRUD(lab.Formats, nil),
		}, a.flow, a.hub, a.logger),

		Insurances: NewScreen(ScreenConfig[admin.Insurance]{
			Name: "insurances",
			List: listctl.Config[admin.Insurance]{
				Fetch:        adm.Insurances.List,
				Delete:       func(ctx context.Context, i admin.Insurance) error { return adm.Insurances.Delete(ctx, i.ID) },
				SearchFields: admin.InsuranceSearchFields,
				Debounce:     debounce,
			},
			Form: formCRUD(adm.Insurances, admin.NewInsurance),
		}, a.flow, a.hub, a.logger),

		VisitTypes: NewScreen(ScreenConfig[admin.VisitType]{
			Name: "visit-types",
			List: listctl.Config[admin.VisitType]{
				Fetch:        adm.VisitTypes.List,
				Delete:       func(ctx context.Context, v admin.VisitType) error { return adm.VisitTypes.Delete(ctx, v.ID) },
				SearchFields: admin.VisitTypeSearchFields,
				Debounce:     debounce,
			},
			Form: formCRUD(adm.VisitTypes, admin.NewVisitType),
		}, a.flow, a.hub, a.logger),

		Departments: NewScreen(ScreenConfig[staff.Department]{
			Name: "staff-management/departments",
			List: listctl.Config[staff.Department]{
				Fetch:        stf.Departments.List,
				Delete:       func(ctx context.Context, d staff.Department) error { return stf.Departments.Delete(ctx, d.ID) },
				SearchFields: staff.DepartmentSearchFields,
				Debounce:     debounce,
			},
			Form: formCRUD(stf.Departments, staff.NewDepartment),
		}, a.flow, a.hub, a.logger),
	}
}

func (a *App) reportSources() reporting.Sources {
	lab := laboratory.NewResources(a.client)
	adm := admin.NewResources(a.client)
	return reporting.Sources{
		LabClasses: lab.Classes.Count,
		Insurances: adm.Insurances.Count,
		VisitTypes: adm.VisitTypes.Count,
		Patients:   patient.NewResource(a.client).List,
		LabCounters: map[string]reporting.Counter{
			"lab-test-classes": lab.Classes.Count,
			"lab-tests":        lab.Tests.Count,
			"lab-test-formats": lab.Formats.Count,
			"lab-orders":       lab.Orders.Count,
			"lab-results":      lab.Results.Count,
		},
	}
}

// formCRUD binds a form to an API resource.
func formCRUD[T domain.Entity](res *gateway.Resource[T], defaults func() T) formctl.Config[T] {
	return formctl.Config[T]{
		Create:   res.Create,
		Update:   res.Update,
		Delete:   res.Delete,
		Defaults: defaults,
	}
}

func withPrompt[T domain.Entity](cfg formctl.Config[T], prompt string) formctl.Config[T] {
	cfg.ConfirmPrompt = prompt
	return cfg
}

func (a *App) Screens() Screens { return a.screens }

func (a *App) Flow() *reauth.Flow { return a.flow }

func (a *App) Session() *session.Store { return a.session }

// Handler builds the console routes. /auth is public; everything under
// /home requires a stored session.
func (a *App) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(a.opts.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, HomePath)
	})

	authGroup := e.Group("/auth")
	authGroup.GET("/login", a.handleLoginPage)
	authGroup.POST("/login", a.handleLogin)
	authGroup.POST("/logout", a.handleLogout)
	authGroup.GET("/reauth", a.handleReauthState)
	authGroup.POST("/reauth", a.handleReauth)
	authGroup.DELETE("/reauth", a.handleReauthDismiss)

	home := e.Group(screensPrefix, auth.RequireSession(a.session))
	reporting.NewHandler(a.reports).RegisterRoutes(home)
	websocket.NewHandler(a.hub).RegisterRoutes(home)
	for _, s := range a.screens.all() {
		s.RegisterRoutes(home.Group("/" + s.Name()))
	}
	return e
}

// Close stops the debounce timers of every screen and detaches the
// reauthentication prompt from the session signal and the live feed.
func (a *App) Close() {
	for _, s := range a.screens.all() {
		s.Close()
	}
	a.unwatch()
	a.flow.Detach()
}

type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Next     string `json:"next" form:"next"`
}

func (a *App) handleLoginPage(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"authenticated": a.session.IsAuthenticated(),
		"next":          auth.SafeNext(c.QueryParam("next"), HomePath),
	})
}

// handleLogin exchanges credentials for a token and redirects to the
// requested screen.
func (a *App) handleLogin(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": reauth.MsgMissingCredentials})
	}

	token, err := a.client.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		a.logger.Warn().Err(err).Str("username", req.Username).Msg("login failed")
		return c.JSON(loginStatus(err), map[string]string{"error": reauth.LoginMessage(err)})
	}
	if err := a.session.SetToken(token); err != nil {
		a.logger.Error().Err(err).Msg("failed to store session")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": loginFailed})
	}
	a.logger.Info().Str("username", a.session.Subject()).Msg("logged in")
	return c.Redirect(http.StatusSeeOther, auth.SafeNext(req.Next, HomePath))
}

// handleLogout needs confirm=true; without it the answer carries the
// confirmation prompt and the session is kept.
func (a *App) handleLogout(c echo.Context) error {
	if !confirmed(c) {
		return c.JSON(http.StatusOK, map[string]string{"confirm": LogoutPrompt})
	}
	if err := a.session.Clear(); err != nil {
		a.logger.Error().Err(err).Msg("failed to clear session")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Logout failed. Please try again."})
	}
	a.flow.Dismiss()
	return c.Redirect(http.StatusSeeOther, auth.LoginPath)
}

func (a *App) handleReauthState(c echo.Context) error {
	return c.JSON(http.StatusOK, a.flow.Snapshot())
}

func (a *App) handleReauth(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, a.flow.Snapshot())
	}
	err := a.flow.Submit(c.Request().Context(), req.Username, req.Password)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, a.flow.Snapshot())
	case errors.Is(err, reauth.ErrNotVisible), errors.Is(err, reauth.ErrInFlight):
		return c.JSON(http.StatusConflict, a.flow.Snapshot())
	default:
		return c.JSON(loginStatus(err), a.flow.Snapshot())
	}
}

func (a *App) handleReauthDismiss(c echo.Context) error {
	a.flow.Dismiss()
	return c.JSON(http.StatusOK, a.flow.Snapshot())
}

// loginStatus answers rejected credentials with 401 whatever status the
// token endpoint used.
func loginStatus(err error) int {
	if reauth.BadCredentials(err) {
		return http.StatusUnauthorized
	}
	return apperr.HTTPStatus(err)
}

func redirectToLogin(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, auth.LoginPath+"?next="+url.QueryEscape(c.Request().URL.RequestURI()))
}
