package staff

import (
	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/gateway"
)

const (
	DepartmentsPath           = "staff-management/departments/"
	DepartmentGroupsPath      = "staff-management/department-groups/"
	DepartmentPermissionsPath = "staff-management/department-permissions/"
)

// Department is an organizational unit, e.g. Laboratory or Pharmacy.
type Department struct {
	ID          domain.ID `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Group       domain.ID `json:"group,omitempty"`
	IsActive    bool      `json:"is_active"`
}

func (d Department) EntityID() domain.ID { return d.ID }

func NewDepartment() Department { return Department{IsActive: true} }

func DepartmentSearchFields(d Department) []string {
	return []string{d.Name, d.Code, d.Description}
}

type DepartmentGroup struct {
	ID          domain.ID `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
}

func (g DepartmentGroup) EntityID() domain.ID { return g.ID }

// DepartmentPermission grants a department access to a module.
type DepartmentPermission struct {
	ID         domain.ID `json:"id,omitempty"`
	Department domain.ID `json:"department" validate:"required"`
	Permission string    `json:"permission" validate:"required"`
}

func (p DepartmentPermission) EntityID() domain.ID { return p.ID }

type Resources struct {
	Departments *gateway.Resource[Department]
	Groups      *gateway.Resource[DepartmentGroup]
	Permissions *gateway.Resource[DepartmentPermission]
}

func NewResources(c *gateway.Client) Resources {
	return Resources{
		Departments: gateway.NewResource[Department](c, DepartmentsPath),
		Groups:      gateway.NewResource[DepartmentGroup](c, DepartmentGroupsPath),
		Permissions: gateway.NewResource[DepartmentPermission](c, DepartmentPermissionsPath),
	}
}
