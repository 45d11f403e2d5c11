package formctl

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/laboratory"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
)

type fakeBackend[T domain.Entity] struct {
	creates atomic.Int32
	updates atomic.Int32
	deletes atomic.Int32
	err     error
	assign  func(T) T
	block   chan struct{}
}

func (b *fakeBackend[T]) create(_ context.Context, item T) (T, error) {
	b.creates.Add(1)
	if b.block != nil {
		<-b.block
	}
	if b.err != nil {
		var zero T
		return zero, b.err
	}
	return b.assign(item), nil
}

func (b *fakeBackend[T]) update(_ context.Context, _ domain.ID, item T) (T, error) {
	b.updates.Add(1)
	if b.err != nil {
		return item, b.err
	}
	return item, nil
}

func (b *fakeBackend[T]) remove(context.Context, domain.ID) error {
	b.deletes.Add(1)
	return b.err
}

func completePatient() patient.Patient {
	return patient.Patient{
		FirstName:             "Jane",
		LastName:              "Doe",
		Gender:                "Female",
		DateOfBirth:           "1990-04-12",
		NationalID:            "29876543",
		PrimaryPhone:          "0712000111",
		Address:               "Nairobi",
		NextOfKinName:         "John Doe",
		NextOfKinContact:      "0722000222",
		NextOfKinRelationship: "Spouse",
	}
}

func newPatientForm(b *fakeBackend[patient.Patient], onSuccess func(patient.Patient, Op)) *Controller[patient.Patient] {
	b.assign = func(p patient.Patient) patient.Patient { p.ID = "101"; return p }
	return New(Config[patient.Patient]{
		Name:      "patients",
		Create:    b.create,
		Update:    b.update,
		Delete:    b.remove,
		OnSuccess: onSuccess,
	}, zerolog.Nop())
}

func TestSubmit_MissingPrimaryPhone(t *testing.T) {
	b := &fakeBackend[patient.Patient]{}
	f := newPatientForm(b, nil)

	p := completePatient()
	p.PrimaryPhone = ""
	f.Open(nil)
	for field, value := range map[string]any{
		"first_name": p.FirstName, "last_name": p.LastName, "gender": p.Gender,
		"date_of_birth": p.DateOfBirth, "national_id": p.NationalID, "address": p.Address,
		"next_of_kin_name": p.NextOfKinName, "next_of_kin_contact": p.NextOfKinContact,
		"next_of_kin_relationship": p.NextOfKinRelationship,
	} {
		if err := f.Change(field, value); err != nil {
			t.Fatalf("change %s: %v", field, err)
		}
	}

	err := f.Submit(context.Background())
	if !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	errs := f.State().Errors
	if len(errs) != 1 {
		t.Fatalf("expected exactly one field error, got %v", errs)
	}
	if errs["primary_phone"] != "Primary phone is required" {
		t.Errorf("unexpected message %q", errs["primary_phone"])
	}
	if b.creates.Load() != 0 {
		t.Error("expected no network call")
	}
	if !f.State().Open {
		t.Error("expected form to stay open")
	}
}

func TestSubmit_WhitespaceIsMissing(t *testing.T) {
	b := &fakeBackend[patient.Patient]{}
	f := newPatientForm(b, nil)
	p := completePatient()
	f.Open(&p)
	f.Change("first_name", "   ")

	if errs := f.Validate(); errs["first_name"] != "First name is required" || len(errs) != 1 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestSubmit_CreateCallsOnSuccessAndCloses(t *testing.T) {
	b := &fakeBackend[patient.Patient]{}
	var saved patient.Patient
	var op Op
	f := newPatientForm(b, func(p patient.Patient, o Op) { saved, op = p, o })

	p := completePatient()
	f.Open(nil)
	for field, value := range map[string]any{
		"first_name": p.FirstName, "last_name": p.LastName, "gender": p.Gender,
		"date_of_birth": p.DateOfBirth, "national_id": p.NationalID, "primary_phone": p.PrimaryPhone,
		"address": p.Address, "next_of_kin_name": p.NextOfKinName,
		"next_of_kin_contact": p.NextOfKinContact, "next_of_kin_relationship": p.NextOfKinRelationship,
	} {
		f.Change(field, value)
	}

	if err := f.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op != OpCreate || saved.ID != "101" || saved.FirstName != "Jane" {
		t.Errorf("unexpected success callback: %s %+v", op, saved)
	}
	if f.State().Open {
		t.Error("expected form closed after success")
	}
}

func TestSubmit_EditUpdates(t *testing.T) {
	b := &fakeBackend[patient.Patient]{}
	var op Op
	f := newPatientForm(b, func(_ patient.Patient, o Op) { op = o })

	p := completePatient()
	p.ID = "7"
	f.Open(&p)
	if f.State().Mode != ModeEdit || f.State().EditingID != "7" {
		t.Fatalf("expected edit mode for 7, got %+v", f.State())
	}
	f.Change("address", "Mombasa")

	if err := f.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.updates.Load() != 1 || b.creates.Load() != 0 {
		t.Errorf("expected one update, got creates=%d updates=%d", b.creates.Load(), b.updates.Load())
	}
	if op != OpUpdate {
		t.Errorf("expected update op, got %s", op)
	}
}

func TestSubmit_ServerFailureKeepsDraft(t *testing.T) {
	b := &fakeBackend[laboratory.TestClass]{err: apperr.FromStatus("POST laboratory/lab-test-classes/", http.StatusInternalServerError, "")}
	b.assign = func(c laboratory.TestClass) laboratory.TestClass { return c }
	f := New(Config[laboratory.TestClass]{Name: "classes", Create: b.create, Update: b.update, Defaults: laboratory.NewTestClass}, zerolog.Nop())

	f.Open(nil)
	f.Change("name", "Chemistry")
	if err := f.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	s := f.State()
	if !s.Open {
		t.Error("expected form to stay open")
	}
	if s.Errors[SubmitKey] != SubmitError {
		t.Errorf("expected submit error, got %v", s.Errors)
	}
	if s.Draft["name"] != "Chemistry" {
		t.Errorf("expected draft preserved, got %v", s.Draft["name"])
	}
	if s.Draft["is_active"] != true {
		t.Errorf("expected is_active default true, got %v", s.Draft["is_active"])
	}
}

func TestSubmit_SecondSubmitWhileLoadingIsBusy(t *testing.T) {
	b := &fakeBackend[laboratory.TestClass]{block: make(chan struct{})}
	b.assign = func(c laboratory.TestClass) laboratory.TestClass { c.ID = "1"; return c }
	f := New(Config[laboratory.TestClass]{Name: "classes", Create: b.create, Update: b.update}, zerolog.Nop())
	f.Open(nil)
	f.Change("name", "Chemistry")

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	for b.creates.Load() == 0 {
		// wait for the first request
	}
	if !f.State().Loading {
		t.Error("expected loading while request in flight")
	}
	if err := f.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(b.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.creates.Load() != 1 {
		t.Errorf("expected one create, got %d", b.creates.Load())
	}
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	b := &fakeBackend[laboratory.TestClass]{}
	var op Op
	f := New(Config[laboratory.TestClass]{
		Name:          "classes",
		Delete:        b.remove,
		ConfirmPrompt: laboratory.ClassDeletePrompt,
		OnSuccess:     func(_ laboratory.TestClass, o Op) { op = o },
	}, zerolog.Nop())

	f.Open(nil)
	if err := f.RequestDelete(); !errors.Is(err, ErrNotEditing) {
		t.Errorf("expected ErrNotEditing in create mode, got %v", err)
	}

	c := laboratory.TestClass{ID: "3", Name: "Hematology"}
	f.Open(&c)
	if err := f.Delete(context.Background()); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if b.deletes.Load() != 0 {
		t.Fatal("expected no delete before confirmation")
	}

	f.RequestDelete()
	if p := f.State().ConfirmPrompt; p != laboratory.ClassDeletePrompt {
		t.Errorf("unexpected prompt %q", p)
	}
	if err := f.Delete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.deletes.Load() != 1 || op != OpDelete {
		t.Errorf("expected one delete, got %d (%s)", b.deletes.Load(), op)
	}
	if f.State().Open {
		t.Error("expected form closed after delete")
	}
}

func TestDelete_FailureStaysOpen(t *testing.T) {
	b := &fakeBackend[laboratory.TestClass]{err: apperr.FromStatus("DELETE x", http.StatusNotFound, "Not found.")}
	f := New(Config[laboratory.TestClass]{Name: "classes", Delete: b.remove}, zerolog.Nop())
	c := laboratory.TestClass{ID: "3", Name: "Hematology"}
	f.Open(&c)
	f.RequestDelete()

	if err := f.Delete(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	s := f.State()
	if !s.Open {
		t.Error("expected form to stay open")
	}
	if s.Errors[SubmitKey] != "This record no longer exists. It may have been removed by another user." {
		t.Errorf("unexpected submit error %q", s.Errors[SubmitKey])
	}
}

func TestChange_RejectsUnknownAndID(t *testing.T) {
	f := New(Config[laboratory.TestClass]{Name: "classes"}, zerolog.Nop())
	f.Open(nil)
	if err := f.Change("id", "9"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected id to be rejected, got %v", err)
	}
	if err := f.Change("colour", "red"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected unknown field, got %v", err)
	}
}

func TestChange_ClosedForm(t *testing.T) {
	f := New(Config[laboratory.TestClass]{Name: "classes"}, zerolog.Nop())
	if err := f.Change("name", "x"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestSubmit_LabTestDecodesStrings(t *testing.T) {
	b := &fakeBackend[laboratory.Test]{}
	var saved laboratory.Test
	b.assign = func(lt laboratory.Test) laboratory.Test { lt.ID = "5"; return lt }
	f := New(Config[laboratory.Test]{
		Name:      "tests",
		Create:    b.create,
		Update:    b.update,
		Defaults:  laboratory.NewTest,
		OnSuccess: func(lt laboratory.Test, _ Op) { saved = lt },
	}, zerolog.Nop())

	f.Open(nil)
	if errs := f.Validate(); len(errs) != 4 {
		t.Errorf("expected name, code, price and test_class required, got %v", errs)
	}

	f.Change("name", "Full Blood Count")
	f.Change("code", " HEM-001 ")
	f.Change("price", "1500.00")
	f.Change("test_class", 2)
	if err := f.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Price == nil || *saved.Price != 1500 || saved.Code != "HEM-001" || saved.TestClass != "2" {
		t.Errorf("unexpected saved test: %+v", saved)
	}
}

func TestSubmit_LabTestZeroPrice(t *testing.T) {
	b := &fakeBackend[laboratory.Test]{}
	var saved laboratory.Test
	b.assign = func(lt laboratory.Test) laboratory.Test { lt.ID = "6"; return lt }
	f := New(Config[laboratory.Test]{
		Name:      "tests",
		Create:    b.create,
		Update:    b.update,
		Defaults:  laboratory.NewTest,
		OnSuccess: func(lt laboratory.Test, _ Op) { saved = lt },
	}, zerolog.Nop())

	f.Open(nil)
	f.Change("name", "Courtesy screen")
	f.Change("code", "CS")
	f.Change("test_class", 2)
	f.Change("price", " ")
	if errs := f.Validate(); errs["price"] != "Price is required" {
		t.Fatalf("expected blank price to be required, got %v", errs)
	}

	f.Change("price", "0.00")
	f.Change("female_lower_limit", "0")
	if err := f.Submit(context.Background()); err != nil {
		t.Fatalf("expected a zero price to be accepted, got %v", err)
	}
	if saved.Price == nil || *saved.Price != 0 {
		t.Errorf("expected price 0, got %v", saved.Price)
	}
	if saved.FemaleLowerLimit == nil || *saved.FemaleLowerLimit != 0 {
		t.Errorf("expected lower limit 0, got %v", saved.FemaleLowerLimit)
	}
	if saved.MaleLowerLimit != nil {
		t.Errorf("expected untouched limit to stay unset, got %v", *saved.MaleLowerLimit)
	}
}

func TestSubmit_EditDoesNotMutateOriginal(t *testing.T) {
	b := &fakeBackend[laboratory.Test]{}
	f := New(Config[laboratory.Test]{Name: "tests", Create: b.create, Update: b.update}, zerolog.Nop())

	original := laboratory.Test{ID: "3", Name: "CBC", Code: "HEM-001", TestClass: "2", Price: domain.NewAmount(1500)}
	f.Open(&original)
	f.Change("price", "1750")
	if err := f.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *original.Price != 1500 {
		t.Errorf("expected the listed item to keep its price until reload, got %v", *original.Price)
	}

	f.Open(&original)
	f.Change("price", "")
	if errs := f.Validate(); errs["price"] != "Price is required" {
		t.Errorf("expected clearing the price to require it, got %v", errs)
	}
}

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"primary_phone": "Primary phone",
		"national_id":   "National ID",
		"name":          "Name",
	}
	for in, want := range tests {
		if got := Label(in, nil); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Label("name", map[string]string{"name": "Class name"}); got != "Class name" {
		t.Errorf("expected override, got %q", got)
	}
}
