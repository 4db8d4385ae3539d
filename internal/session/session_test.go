package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestParticipant(t *testing.T) {
	s := &Session{ID: "s1", PatientID: "p1", HelperID: "h1"}
	if !s.Participant("p1") || !s.Participant("h1") {
		t.Fatal("patient and helper are participants")
	}
	if s.Participant("other") || s.Participant("") {
		t.Fatal("strangers and empty ids are not participants")
	}

	unassigned := &Session{ID: "s2", PatientID: "p1"}
	if unassigned.Participant("") {
		t.Fatal("empty helper slot must not match an empty principal id")
	}
}

func TestMemoryCreateAndFind(t *testing.T) {
	dir := NewMemoryDirectory()
	s := &Session{PatientID: "p1"}
	if err := dir.Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" || s.Status != StatusWaiting {
		t.Fatalf("session defaults not applied: %+v", s)
	}

	got, err := dir.FindByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.PatientID != "p1" {
		t.Fatalf("patient = %q, want p1", got.PatientID)
	}

	// Returned sessions are copies, not aliases into the store.
	got.Status = StatusClosed
	again, _ := dir.FindByID(context.Background(), s.ID)
	if again.Status != StatusWaiting {
		t.Fatal("store state leaked through a returned session")
	}
}

func TestMemoryCreateRequiresPatient(t *testing.T) {
	dir := NewMemoryDirectory()
	if err := dir.Create(context.Background(), &Session{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMemoryFindMissing(t *testing.T) {
	dir := NewMemoryDirectory()
	if _, err := dir.FindByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGCreate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`insert into sessions.+returning created_at, updated_at`).
		WithArgs(sqlmock.AnyArg(), "p1", "", StatusWaiting, "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	s := &Session{PatientID: "p1"}
	if err := NewPGDirectory(db).Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" || !s.CreatedAt.Equal(now) {
		t.Fatalf("session = %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select .+ from sessions where id=\$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "helper_id", "status", "severity", "created_at", "updated_at"}))

	if _, err := NewPGDirectory(db).FindByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
