package admin

import (
	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/gateway"
)

const (
	InsurancesPath = "insurances/"
	VisitTypesPath = "visit-types/"
)

// Insurance is a payer a patient visit can be billed to.
type Insurance struct {
	ID           domain.ID `json:"id,omitempty"`
	Name         string    `json:"name" validate:"required"`
	PolicyNumber string    `json:"policy_number" validate:"required"`
	Provider     string    `json:"provider"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
}

func (i Insurance) EntityID() domain.ID { return i.ID }

func NewInsurance() Insurance { return Insurance{IsActive: true} }

func InsuranceSearchFields(i Insurance) []string {
	return []string{i.Name, i.PolicyNumber, i.Provider}
}

// VisitType classifies a patient visit, e.g. outpatient or emergency.
type VisitType struct {
	ID          domain.ID     `json:"id,omitempty"`
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description"`
	Fee         domain.Amount `json:"fee"`
	IsActive    bool          `json:"is_active"`
}

func (v VisitType) EntityID() domain.ID { return v.ID }

func NewVisitType() VisitType { return VisitType{IsActive: true} }

func VisitTypeSearchFields(v VisitType) []string {
	return []string{v.Name, v.Description}
}

type Resources struct {
	Insurances *gateway.Resource[Insurance]
	VisitTypes *gateway.Resource[VisitType]
}

func NewResources(c *gateway.Client) Resources {
	return Resources{
		Insurances: gateway.NewResource[Insurance](c, InsurancesPath),
		VisitTypes: gateway.NewResource[VisitType](c, VisitTypesPath),
	}
}
