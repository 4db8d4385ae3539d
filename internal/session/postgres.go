package session

import (
	"context"
	"database/sql"
	"strings"

	"mindhaven.org/internal/ids"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements Directory using PostgreSQL.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) FindByID(ctx context.Context, id string) (*Session, error) {
	row := d.db.QueryRowContext(ctx,
		`select id, patient_id, coalesce(helper_id, ''), status, coalesce(severity, ''), created_at, updated_at
		 from sessions where id=$1`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.PatientID, &s.HelperID, &s.Status, &s.Severity, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (d *PGDirectory) Create(ctx context.Context, s *Session) error {
	if strings.TrimSpace(s.PatientID) == "" {
		return ErrInvalidInput
	}
	if s.ID == "" {
		s.ID = ids.New()
	}
	if s.Status == "" {
		s.Status = StatusWaiting
	}
	row := d.db.QueryRowContext(ctx,
		`insert into sessions(id, patient_id, helper_id, status, severity)
		 values($1, $2, nullif($3, ''), $4, nullif($5, ''))
		 returning created_at, updated_at`,
		s.ID, s.PatientID, s.HelperID, s.Status, s.Severity)
	return row.Scan(&s.CreatedAt, &s.UpdatedAt)
}
