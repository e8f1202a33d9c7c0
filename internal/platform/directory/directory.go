// Package directory resolves user identities to roles and contact details.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the user id does not resolve.
var ErrNotFound = errors.New("user not found")

// User is a directory entry.
type User struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Name   string    `db:"name" json:"name"`
	Role   string    `db:"role" json:"role"`
	Email  string    `db:"email" json:"email"`
	Active bool      `db:"active" json:"active"`
}

// Directory looks up users by id and recipients by role.
type Directory interface {
	Resolve(ctx context.Context, id uuid.UUID) (*User, error)
	EmailsForRole(ctx context.Context, role string) ([]string, error)
}

type pgDirectory struct{ pool *pgxpool.Pool }

// NewPG returns a Directory backed by the app_user table.
func NewPG(pool *pgxpool.Pool) Directory { return &pgDirectory{pool: pool} }

func (d *pgDirectory) Resolve(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := d.pool.QueryRow(ctx,
		`SELECT id, name, role, email, active FROM app_user WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.Email, &u.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", id, err)
	}
	if !u.Active {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *pgDirectory) EmailsForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT email FROM app_user WHERE role = $1 AND active`, role)
	if err != nil {
		return nil, fmt.Errorf("list %s recipients: %w", role, err)
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
