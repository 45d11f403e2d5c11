package domain

import (
	"encoding/json"
	"testing"
)

func TestID_UnmarshalNumberAndString(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":42,"b":"P-0007","c":null}`), &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.A != "42" {
		t.Errorf("expected 42, got %q", v.A)
	}
	if v.B != "P-0007" {
		t.Errorf("expected P-0007, got %q", v.B)
	}
	if !v.C.IsZero() {
		t.Errorf("expected zero id for null, got %q", v.C)
	}
}

func TestID_MarshalKeepsNumericIDsNumeric(t *testing.T) {
	data, err := json.Marshal(struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c,omitempty"`
	}{A: "42", B: "P-0007"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"a":42,"b":"P-0007"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestAmount_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{`12.5`, 12.5},
		{`"12.50"`, 12.5},
		{`""`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var a Amount
		if err := json.Unmarshal([]byte(tt.in), &a); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.in, err)
		}
		if a != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.in, tt.want, a)
		}
	}

	var a Amount
	if err := json.Unmarshal([]byte(`"abc"`), &a); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestAmount_String(t *testing.T) {
	if got := Amount(7).String(); got != "7.00" {
		t.Errorf("expected 7.00, got %s", got)
	}
}
