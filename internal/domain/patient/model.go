package patient

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/gateway"
)

const Path = "patients/"

// Patient is a registered patient. Required fields follow the stricter of
// the registration and edit forms, so national_id is required.
type Patient struct {
	ID                    domain.ID `json:"id,omitempty"`
	FirstName             string    `json:"first_name" validate:"required"`
	OtherNames            string    `json:"other_names"`
	LastName              string    `json:"last_name" validate:"required"`
	Gender                string    `json:"gender" validate:"required"`
	DateOfBirth           string    `json:"date_of_birth" validate:"required"`
	NationalID            string    `json:"national_id" validate:"required"`
	PrimaryPhone          string    `json:"primary_phone" validate:"required"`
	SecondaryPhone        string    `json:"secondary_phone"`
	Email                 string    `json:"email"`
	Address               string    `json:"address" validate:"required"`
	NextOfKinName         string    `json:"next_of_kin_name" validate:"required"`
	NextOfKinContact      string    `json:"next_of_kin_contact" validate:"required"`
	NextOfKinRelationship string    `json:"next_of_kin_relationship" validate:"required"`
	BloodType             string    `json:"blood_type"`
	Allergies             string    `json:"allergies"`
	ChronicConditions     string    `json:"chronic_conditions"`
	ReferralSource        string    `json:"referral_source"`
}

func (p Patient) EntityID() domain.ID { return p.ID }

// FullName is "first other last" with empty parts skipped.
func (p Patient) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.OtherNames, p.LastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// SearchFields are matched by the patient search box.
func SearchFields(p Patient) []string {
	return []string{p.FullName(), p.Email, p.PrimaryPhone}
}

// GroupKey buckets patients by the upper-cased first letter of the last
// name. Patients without a last name go under "#".
func GroupKey(p Patient) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(p.LastName))
	if r == utf8.RuneError {
		return "#"
	}
	return string(unicode.ToUpper(r))
}

func NewResource(c *gateway.Client) *gateway.Resource[Patient] {
	return gateway.NewResource[Patient](c, Path)
}

// GenderCount is one slice of the dashboard's gender chart.
type GenderCount struct {
	Gender string `json:"gender"`
	Count  int    `json:"count"`
}

// GenderDistribution counts patients per gender value, in order of first
// appearance.
func GenderDistribution(patients []Patient) []GenderCount {
	out := []GenderCount{}
	index := map[string]int{}
	for _, p := range patients {
		i, ok := index[p.Gender]
		if !ok {
			i = len(out)
			index[p.Gender] = i
			out = append(out, GenderCount{Gender: p.Gender})
		}
		out[i].Count++
	}
	return out
}
