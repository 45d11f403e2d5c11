// Package sandbox is a local stand-in for the hospital REST API. It issues
// expiring bearer tokens, serves CRUD for every back-office collection and
// seeds reproducible demo data, so the console can be exercised without
// the real service.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain/admin"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/laboratory"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/staff"
)

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	PatientCount int   `json:"patientCount"`
	OrderCount   int   `json:"orderCount"`
	Seed         int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{PatientCount: 25, OrderCount: 10}
}

// SeedResult summarizes a seed run per collection.
type SeedResult struct {
	Counts         map[string]int `json:"counts"`
	TotalResources int            `json:"totalResources"`
	Duration       time.Duration  `json:"duration"`
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

var (
	firstNamesMale   = []string{"Brian", "Kevin", "Dennis", "Samuel", "Peter", "Joseph", "Collins", "Victor", "Evans", "Felix"}
	firstNamesFemale = []string{"Faith", "Mercy", "Grace", "Esther", "Joy", "Lucy", "Ann", "Caroline", "Winnie", "Purity"}
	lastNames        = []string{"Otieno", "Wanjiru", "Kamau", "Achieng", "Mwangi", "Njeri", "Kiprono", "Atieno", "Mutua", "Chebet", "Omondi", "Wambui", "Kariuki", "Nyambura", "Ochieng"}
	towns            = []string{"Nairobi", "Mombasa", "Kisumu", "Nakuru", "Eldoret", "Thika", "Machakos", "Nyeri"}
	relationships    = []string{"Spouse", "Parent", "Sibling", "Child", "Guardian"}
	bloodTypes       = []string{"A+", "A-", "B+", "B-", "AB+", "O+", "O-"}
	referralSources  = []string{"Walk-in", "Referral", "Insurance", "Online"}
	orderStatuses    = []string{"pending", "in_progress", "completed"}
	orderPriorities  = []string{"routine", "urgent", "stat"}
)

type classDef struct {
	Name     string
	Category string
	Tests    []testDef
}

type testDef struct {
	Name  string
	Code  string
	Price string
	Units string
}

var labCatalog = []classDef{
	{"Haematology", "Blood", []testDef{
		{"Full Haemogram", "FHG", "800.00", ""},
		{"Haemoglobin", "HB", "300.00", "g/dL"},
		{"ESR", "ESR", "400.00", "mm/hr"},
	}},
	{"Biochemistry", "Blood", []testDef{
		{"Random Blood Sugar", "RBS", "200.00", "mmol/L"},
		{"Urea, Electrolytes & Creatinine", "UEC", "1500.00", ""},
		{"Liver Function Test", "LFT", "1800.00", ""},
	}},
	{"Microbiology", "Culture", []testDef{
		{"Urine Culture", "UCS", "1200.00", ""},
		{"Stool Culture", "SCS", "1200.00", ""},
	}},
	{"Parasitology", "Microscopy", []testDef{
		{"Malaria Parasites", "BS", "250.00", ""},
		{"Stool Ova & Cysts", "SOC", "300.00", ""},
	}},
	{"Serology", "Immunology", []testDef{
		{"HIV Screening", "HIV", "500.00", ""},
		{"Widal Test", "WDL", "400.00", ""},
	}},
}

var (
	labFormats = []string{"Numeric", "Free text", "Positive/Negative"}
	insurers   = []struct{ Name, Provider string }{
		{"SHA Cover", "Social Health Authority"},
		{"AAR Health", "AAR Insurance"},
		{"Jubilee Afya", "Jubilee Health"},
		{"Britam Milele", "Britam"},
		{"CIC Family", "CIC Group"},
	}
	visitTypes = []struct{ Name, Fee string }{
		{"Consultation", "1000.00"},
		{"Follow-up", "500.00"},
		{"Emergency", "2500.00"},
		{"Antenatal", "800.00"},
	}
	departmentGroups = []string{"Clinical", "Diagnostics", "Administration"}
	departments      = []struct {
		Name, Code string
		Group      int
	}{
		{"Outpatient", "OPD", 0},
		{"Inpatient", "IPD", 0},
		{"Laboratory", "LAB", 1},
		{"Radiology", "RAD", 1},
		{"Records", "REC", 2},
		{"Billing", "BIL", 2},
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic records.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomDate(minYear, maxYear int) string {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28) // safe for all months
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("07%02d %03d %03d", g.rng.Intn(100), g.rng.Intn(1000), g.rng.Intn(1000))
}

// GeneratePatient produces a patient registration record.
func (g *DataGenerator) GeneratePatient() Record {
	g.counter++
	first, gender := g.pick(firstNamesFemale), "Female"
	if g.rng.Intn(2) == 0 {
		first, gender = g.pick(firstNamesMale), "Male"
	}
	last := g.pick(lastNames)
	kinFirst := g.pick(firstNamesFemale)
	if g.rng.Intn(2) == 0 {
		kinFirst = g.pick(firstNamesMale)
	}

	return Record{
		"first_name":               first,
		"other_names":              "",
		"last_name":                last,
		"gender":                   gender,
		"date_of_birth":            g.randomDate(1950, 2020),
		"national_id":              strconv.Itoa(20000000 + g.rng.Intn(20000000)),
		"primary_phone":            g.randomPhone(),
		"secondary_phone":          "",
		"email":                    fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), g.counter),
		"address":                  fmt.Sprintf("P.O. Box %d, %s", 100+g.rng.Intn(9900), g.pick(towns)),
		"next_of_kin_name":         kinFirst + " " + last,
		"next_of_kin_contact":      g.randomPhone(),
		"next_of_kin_relationship": g.pick(relationships),
		"blood_type":               g.pick(bloodTypes),
		"allergies":                "",
		"chronic_conditions":       "",
		"referral_source":          g.pick(referralSources),
	}
}

// GenerateOrder produces a lab order for an existing patient and test.
func (g *DataGenerator) GenerateOrder(patientID, testID interface{}) Record {
	return Record{
		"patient":  patientID,
		"lab_test": testID,
		"status":   g.pick(orderStatuses),
		"priority": g.pick(orderPriorities),
		"notes":    "",
	}
}

// GenerateResult produces a result for a completed order.
func (g *DataGenerator) GenerateResult(orderID interface{}) Record {
	return Record{
		"lab_order":   orderID,
		"value":       strconv.FormatFloat(1+g.rng.Float64()*20, 'f', 1, 64),
		"is_abnormal": g.rng.Intn(5) == 0,
		"notes":       "",
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder writes a complete, consistent data set into a Store.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	store     Store
}

func NewSeeder(store Store, config SeedConfig) *Seeder {
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		store:     store,
	}
}

// Generate seeds every collection. Existing records are kept; call
// Store.Reset first for a clean data set.
func (s *Seeder) Generate(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{Counts: make(map[string]int)}

	create := func(collection string, rec Record) (Record, error) {
		out, err := s.store.Create(ctx, collection, rec)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", collection, err)
		}
		result.Counts[collection]++
		result.TotalResources++
		return out, nil
	}

	var testIDs []interface{}
	for _, cls := range labCatalog {
		c, err := create(laboratory.ClassesPath, Record{
			"name":        cls.Name,
			"description": cls.Name + " investigations",
			"is_active":   true,
			"category":    cls.Category,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range cls.Tests {
			lt, err := create(laboratory.TestsPath, Record{
				"name":         t.Name,
				"code":         t.Code,
				"price":        t.Price,
				"test_class":   c["id"],
				"is_active":    true,
				"has_subtests": false,
				"units":        t.Units,
			})
			if err != nil {
				return nil, err
			}
			testIDs = append(testIDs, lt["id"])
		}
	}

	for _, name := range labFormats {
		if _, err := create(laboratory.FormatsPath, Record{"name": name, "description": ""}); err != nil {
			return nil, err
		}
	}

	for i, ins := range insurers {
		if _, err := create(admin.InsurancesPath, Record{
			"name":          ins.Name,
			"policy_number": fmt.Sprintf("POL-%04d", 1001+i),
			"provider":      ins.Provider,
			"is_active":     true,
		}); err != nil {
			return nil, err
		}
	}

	for _, vt := range visitTypes {
		if _, err := create(admin.VisitTypesPath, Record{"name": vt.Name, "fee": vt.Fee, "is_active": true}); err != nil {
			return nil, err
		}
	}

	groupIDs := make([]interface{}, 0, len(departmentGroups))
	for _, name := range departmentGroups {
		grp, err := create(staff.DepartmentGroupsPath, Record{"name": name, "description": ""})
		if err != nil {
			return nil, err
		}
		groupIDs = append(groupIDs, grp["id"])
	}
	for _, d := range departments {
		dep, err := create(staff.DepartmentsPath, Record{
			"name":      d.Name,
			"code":      d.Code,
			"group":     groupIDs[d.Group],
			"is_active": true,
		})
		if err != nil {
			return nil, err
		}
		if _, err := create(staff.DepartmentPermissionsPath, Record{"department": dep["id"], "permission": "view"}); err != nil {
			return nil, err
		}
	}

	patientIDs := make([]interface{}, 0, s.config.PatientCount)
	for i := 0; i < s.config.PatientCount; i++ {
		p, err := create(patient.Path, s.generator.GeneratePatient())
		if err != nil {
			return nil, err
		}
		patientIDs = append(patientIDs, p["id"])
	}

	if len(patientIDs) > 0 {
		for i := 0; i < s.config.OrderCount; i++ {
			order := s.generator.GenerateOrder(patientIDs[i%len(patientIDs)], testIDs[i%len(testIDs)])
			o, err := create(laboratory.OrdersPath, order)
			if err != nil {
				return nil, err
			}
			if order["status"] != "completed" {
				continue
			}
			r, err := create(laboratory.ResultsPath, s.generator.GenerateResult(o["id"]))
			if err != nil {
				return nil, err
			}
			if r["is_abnormal"] == true {
				if _, err := create(laboratory.CommentsPath, Record{"lab_result": r["id"], "comment": "Repeat test advised"}); err != nil {
					return nil, err
				}
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding and reset of a sandbox store over HTTP.
type SeedHandler struct {
	store  Store
	logger zerolog.Logger
}

func NewSeedHandler(store Store, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{store: store, logger: logger}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.POST("/reset", h.handleReset)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": err.Error()})
	}

	result, err := NewSeeder(h.store, cfg).Generate(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("seed failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	h.logger.Info().Int("total", result.TotalResources).Dur("duration", result.Duration).Msg("sandbox seeded")
	return c.JSON(http.StatusOK, result)
}

func (h *SeedHandler) handleReset(c echo.Context) error {
	if err := h.store.Reset(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}
