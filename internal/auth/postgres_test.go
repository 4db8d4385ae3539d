package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var principalRowColumns = []string{
	"id", "role", "is_active", "is_anonymous", "anonymous_id", "suspended_until", "created_at", "last_active_at",
}

func TestPGFindByID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`select .+ from users where id=\$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(principalRowColumns).
			AddRow("user-1", "counselor", true, false, "", nil, now, now))

	p, err := NewPGDirectory(db).FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if p.Role != RoleCounselor || !p.IsActive || p.SuspendedUntil != nil {
		t.Fatalf("principal = %+v", p)
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

	mock.ExpectQuery(`select .+ from users where id=\$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(principalRowColumns))

	_, err = NewPGDirectory(db).FindByID(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGFindByIDSuspended(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	until := now.Add(48 * time.Hour)
	mock.ExpectQuery(`select .+ from users where id=\$1`).
		WithArgs("benched").
		WillReturnRows(sqlmock.NewRows(principalRowColumns).
			AddRow("benched", "patient", true, false, "", until, now, now))

	p, err := NewPGDirectory(db).FindByID(context.Background(), "benched")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if p.SuspendedUntil == nil || !p.SuspendedUntil.Equal(until) {
		t.Fatalf("SuspendedUntil = %v, want %v", p.SuspendedUntil, until)
	}
	if !p.Suspended(now) {
		t.Fatal("Suspended(now) = false, want true")
	}
}

func TestPGCreateAnonymousUpsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`insert into users.+on conflict \(anonymous_id\) do update.+returning`).
		WithArgs(sqlmock.AnyArg(), RolePatient, "anon-uuid").
		WillReturnRows(sqlmock.NewRows(principalRowColumns).
			AddRow("existing-id", "patient", true, true, "anon-uuid", nil, now, now))

	p, err := NewPGDirectory(db).CreateAnonymous(context.Background(), "anon-uuid")
	if err != nil {
		t.Fatalf("CreateAnonymous: %v", err)
	}
	if p.ID != "existing-id" || !p.IsAnonymous || p.AnonymousID != "anon-uuid" {
		t.Fatalf("principal = %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGTouchLastActive(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`update users set last_active_at = now\(\) where id=\$1`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPGDirectory(db).TouchLastActive(context.Background(), "user-1"); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
