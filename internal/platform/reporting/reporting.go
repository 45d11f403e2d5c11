package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
)

const loadError = "Failed to load dashboard. Please try again later."

// Counter returns the size of one collection.
type Counter func(ctx context.Context) (int, error)

// MeasureDefinition describes one figure on a dashboard.
type MeasureDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Measure is an evaluated MeasureDefinition.
type Measure struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// LabMeasures are the figures of the laboratory dashboard, in display
// order.
var LabMeasures = []MeasureDefinition{
	{ID: "lab-test-classes", Name: "Test Classes"},
	{ID: "lab-tests", Name: "Lab Tests"},
	{ID: "lab-test-formats", Name: "Test Formats"},
	{ID: "lab-orders", Name: "Lab Orders"},
	{ID: "lab-results", Name: "Lab Results"},
}

// Sources are the collaborators the dashboards read from. LabCounters is
// keyed by LabMeasures ID.
type Sources struct {
	LabClasses  Counter
	Insurances  Counter
	VisitTypes  Counter
	Patients    func(ctx context.Context) ([]patient.Patient, error)
	LabCounters map[string]Counter
}

// Dashboard is the home screen summary.
type Dashboard struct {
	TotalLabClasses    int                   `json:"total_lab_classes"`
	TotalPatients      int                   `json:"total_patients"`
	TotalInsurances    int                   `json:"total_insurances"`
	TotalVisitTypes    int                   `json:"total_visit_types"`
	GenderDistribution []patient.GenderCount `json:"gender_distribution"`
	GeneratedAt        time.Time             `json:"generated_at"`
}

type LabDashboard struct {
	Measures    []Measure `json:"measures"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Service struct {
	src    Sources
	logger zerolog.Logger
}

func NewService(src Sources, logger zerolog.Logger) *Service {
	return &Service{src: src, logger: logger}
}

// Dashboard fetches all figures concurrently. One failing source fails
// the whole dashboard.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		d.TotalLabClasses, err = s.src.LabClasses(gctx)
		return err
	})
	g.Go(func() error {
		patients, err := s.src.Patients(gctx)
		if err != nil {
			return err
		}
		d.TotalPatients = len(patients)
		d.GenderDistribution = patient.GenderDistribution(patients)
		return nil
	})
	g.Go(func() (err error) {
		d.TotalInsurances, err = s.src.Insurances(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.TotalVisitTypes, err = s.src.VisitTypes(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Msg("failed to build dashboard")
		return nil, err
	}
	d.GeneratedAt = time.Now()
	return d, nil
}

// LabDashboard evaluates LabMeasures concurrently.
func (s *Service) LabDashboard(ctx context.Context) (*LabDashboard, error) {
	measures := make([]Measure, len(LabMeasures))
	g, gctx := errgroup.WithContext(ctx)

	for i, def := range LabMeasures {
		measures[i] = Measure{ID: def.ID, Name: def.Name}
		count, ok := s.src.LabCounters[def.ID]
		if !ok {
			continue
		}
		i := i
		g.Go(func() error {
			n, err := count(gctx)
			if err != nil {
				return err
			}
			measures[i].Value = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Msg("failed to build laboratory dashboard")
		return nil, err
	}
	return &LabDashboard{Measures: measures, GeneratedAt: time.Now()}, nil
}

// FindMeasure looks up a laboratory measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range LabMeasures {
		if LabMeasures[i].ID == id {
			return &LabMeasures[i]
		}
	}
	return nil
}

// LabMeasure evaluates a single laboratory measure, for refreshing one
// tile without recomputing the whole dashboard.
func (s *Service) LabMeasure(ctx context.Context, id string) (*Measure, error) {
	def := FindMeasure(id)
	if def == nil {
		return nil, apperr.New(apperr.KindNotFound, "LabMeasure", fmt.Errorf("unknown measure %q", id))
	}
	m := &Measure{ID: def.ID, Name: def.Name}
	count, ok := s.src.LabCounters[def.ID]
	if !ok {
		return m, nil
	}
	n, err := count(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("measure", id).Msg("failed to evaluate measure")
		return nil, err
	}
	m.Value = n
	return m, nil
}

// Handler serves the dashboards as console screens.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.GetDashboard)
	g.GET("/laboratory", h.GetLabDashboard)
	g.GET("/laboratory/measures/:id", h.GetLabMeasure)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// GetLabDashboard recomputes on every request, so a reload is the
// refresh action.
func (h *Handler) GetLabDashboard(c echo.Context) error {
	d, err := h.svc.LabDashboard(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetLabMeasure(c echo.Context) error {
	m, err := h.svc.LabMeasure(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func errorResponse(c echo.Context, err error) error {
	return c.JSON(apperr.HTTPStatus(err), map[string]string{
		"status": "error",
		"error":  apperr.Message(err, loadError),
	})
}
