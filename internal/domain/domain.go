// Package domain holds the types shared by every entity the back-office
// manages: server-assigned identifiers and tolerant numeric fields.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a server-assigned identifier. The API returns integers for most
// resources and strings for some; both decode into ID. The empty ID marks
// an entity that has not been created yet.
type ID string

func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Amount is a decimal quantity such as a price or a reference limit.
// Decimal fields are serialized as strings by the API ("12.50") but some
// endpoints return plain numbers; both decode into Amount.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", s, err)
	}
	*a = Amount(f)
	return nil
}

// NewAmount returns a pointer to v, for optional amount fields.
func NewAmount(v float64) *Amount {
	a := Amount(v)
	return &a
}

// String formats the amount with two decimals, the way prices are shown.
func (a Amount) String() string {
	return strconv.FormatFloat(float64(a), 'f', 2, 64)
}

// Entity is implemented by every record type managed through the
// list and form controllers.
type Entity interface {
	EntityID() ID
}
