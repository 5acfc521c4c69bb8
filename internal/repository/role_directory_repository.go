package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// RoleDirectoryRepository resolves functional roles to notification emails.
type RoleDirectoryRepository struct {
	db *sqlx.DB
}

// NewRoleDirectoryRepository constructs the repository.
func NewRoleDirectoryRepository(db *sqlx.DB) *RoleDirectoryRepository {
	return &RoleDirectoryRepository{db: db}
}

// EmailForRole returns the email of the first active user holding the role,
// matched case-insensitively. It returns sql.ErrNoRows when nobody holds it.
func (r *RoleDirectoryRepository) EmailForRole(ctx context.Context, role string) (string, error) {
	const query = `SELECT u.email FROM users u
	JOIN user_roles ur ON ur.user_id = u.id
	JOIN roles ro ON ro.id = ur.role_id
	WHERE LOWER(TRIM(ro.name)) = LOWER(TRIM($1)) AND u.active = TRUE AND TRIM(u.email) <> ''
	ORDER BY u.id
	LIMIT 1`
	var email string
	if err := r.db.GetContext(ctx, &email, query, role); err != nil {
		return "", err
	}
	return email, nil
}
