package auth

import (
	"context"
	"database/sql"

	"mindhaven.org/internal/ids"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements Directory using PostgreSQL. Anonymous creation
// relies on the unique constraint over users.anonymous_id, so concurrent
// first-contact requests collapse into one row.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

const principalColumns = `id, role, is_active, is_anonymous, coalesce(anonymous_id, ''), suspended_until, created_at, last_active_at`

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var (
		p         Principal
		suspended sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Role, &p.IsActive, &p.IsAnonymous, &p.AnonymousID, &suspended, &p.CreatedAt, &p.LastActiveAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if suspended.Valid {
		t := suspended.Time
		p.SuspendedUntil = &t
	}
	return &p, nil
}

func (d *PGDirectory) FindByID(ctx context.Context, id string) (*Principal, error) {
	row := d.db.QueryRowContext(ctx,
		`select `+principalColumns+` from users where id=$1`, id)
	return scanPrincipal(row)
}

func (d *PGDirectory) FindByAnonymousID(ctx context.Context, anonymousID string) (*Principal, error) {
	row := d.db.QueryRowContext(ctx,
		`select `+principalColumns+` from users where anonymous_id=$1`, anonymousID)
	return scanPrincipal(row)
}

func (d *PGDirectory) CreateAnonymous(ctx context.Context, anonymousID string) (*Principal, error) {
	// Find-or-create in one round trip. The conflict arm is a no-op update so
	// the statement still returns the surviving row.
	row := d.db.QueryRowContext(ctx,
		`insert into users(id, role, is_active, is_anonymous, anonymous_id)
		 values($1, $2, true, true, $3)
		 on conflict (anonymous_id) do update set last_active_at = now()
		 returning `+principalColumns,
		ids.New(), RolePatient, anonymousID)
	return scanPrincipal(row)
}

func (d *PGDirectory) TouchLastActive(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`update users set last_active_at = now() where id=$1`, id)
	return err
}
