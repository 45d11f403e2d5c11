package laboratory

import (
	"strings"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/gateway"
)

const (
	ClassesPath  = "laboratory/lab-test-classes/"
	TestsPath    = "laboratory/lab-tests/"
	FormatsPath  = "laboratory/lab-test-formats/"
	OrdersPath   = "laboratory/lab-orders/"
	ResultsPath  = "laboratory/lab-results/"
	CommentsPath = "laboratory/lab-comments/"

	Uncategorized = "Uncategorized"

	ClassDeletePrompt = "Are you sure you want to delete this lab test class?"
	TestDeletePrompt  = "Are you sure you want to delete this lab test?"
	NoTestsMessage    = "No lab tests found matching your search."
	NoClassesMessage  = "No lab test classes found matching your search."
)

// TestClass groups lab tests, e.g. "Hematology" under category "Blood".
type TestClass struct {
	ID          domain.ID `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	Category    string    `json:"category"`
}

func (c TestClass) EntityID() domain.ID { return c.ID }

func NewTestClass() TestClass { return TestClass{IsActive: true} }

func ClassSearchFields(c TestClass) []string {
	return []string{c.Name, c.Description}
}

func ClassGroupKey(c TestClass) string {
	if strings.TrimSpace(c.Category) == "" {
		return Uncategorized
	}
	return c.Category
}

// Test is an orderable lab test with sex-specific reference limits.
// Price and the limits are nil when unset, so a zero value is kept.
type Test struct {
	ID               domain.ID      `json:"id,omitempty"`
	Name             string         `json:"name" validate:"required"`
	Code             string         `json:"code" validate:"required"`
	Price            *domain.Amount `json:"price" validate:"required,gte=0"`
	TestClass        domain.ID      `json:"test_class" validate:"required"`
	TestClassName    string         `json:"test_class_name,omitempty"`
	IsActive         bool           `json:"is_active"`
	HasSubtests      bool           `json:"has_subtests"`
	Units            string         `json:"units"`
	MaleLowerLimit   *domain.Amount `json:"male_lower_limit"`
	MaleUpperLimit   *domain.Amount `json:"male_upper_limit"`
	FemaleLowerLimit *domain.Amount `json:"female_lower_limit"`
	FemaleUpperLimit *domain.Amount `json:"female_upper_limit"`
	ReferenceNotes   string         `json:"reference_notes"`
}

func (t Test) EntityID() domain.ID { return t.ID }

func NewTest() Test { return Test{IsActive: true} }

func LabTestSearchFields(t Test) []string {
	return []string{t.Name, t.Code, t.TestClassName}
}

func LabTestGroupKey(t Test) string {
	if strings.TrimSpace(t.TestClassName) == "" {
		return Uncategorized
	}
	return t.TestClassName
}

// Format is a result template for a lab test.
type Format struct {
	ID          domain.ID `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	LabTest     domain.ID `json:"lab_test,omitempty"`
}

func (f Format) EntityID() domain.ID { return f.ID }

type Order struct {
	ID       domain.ID `json:"id,omitempty"`
	Patient  domain.ID `json:"patient" validate:"required"`
	LabTest  domain.ID `json:"lab_test" validate:"required"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
	Notes    string    `json:"notes"`
}

func (o Order) EntityID() domain.ID { return o.ID }

type Result struct {
	ID         domain.ID `json:"id,omitempty"`
	LabOrder   domain.ID `json:"lab_order" validate:"required"`
	Value      string    `json:"value" validate:"required"`
	IsAbnormal bool      `json:"is_abnormal"`
	Notes      string    `json:"notes"`
}

func (r Result) EntityID() domain.ID { return r.ID }

type Comment struct {
	ID        domain.ID `json:"id,omitempty"`
	LabResult domain.ID `json:"lab_result" validate:"required"`
	Comment   string    `json:"comment" validate:"required"`
}

func (c Comment) EntityID() domain.ID { return c.ID }

// FormatSearchFields matches result templates by name and description.
func FormatSearchFields(f Format) []string {
	return []string{f.Name, f.Description}
}

// Resources bundles the endpoint adapters of the laboratory module.
type Resources struct {
	Classes  *gateway.Resource[TestClass]
	Tests    *gateway.Resource[Test]
	Formats  *gateway.Resource[Format]
	Orders   *gateway.Resource[Order]
	Results  *gateway.Resource[Result]
	Comments *gateway.Resource[Comment]
}

func NewResources(c *gateway.Client) Resources {
	return Resources{
		Classes:  gateway.NewResource[TestClass](c, ClassesPath),
		Tests:    gateway.NewResource[Test](c, TestsPath),
		Formats:  gateway.NewResource[Format](c, FormatsPath),
		Orders:   gateway.NewResource[Order](c, OrdersPath),
		Results:  gateway.NewResource[Result](c, ResultsPath),
		Comments: gateway.NewResource[Comment](c, CommentsPath),
	}
}
