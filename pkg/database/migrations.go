package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		full_name VARCHAR(120) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(80) NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, role_id)
	);`,
	`CREATE TABLE IF NOT EXISTS advance_requests (
		id BIGSERIAL PRIMARY KEY,
		requester_id BIGINT NOT NULL,
		requester_name VARCHAR(120) NOT NULL,
		approver_id BIGINT,
		approver_email VARCHAR(255),
		vendor_name VARCHAR(200) NOT NULL,
		vendor_tax_id VARCHAR(40) NOT NULL DEFAULT '',
		concept TEXT NOT NULL,
		requested_amount NUMERIC(18,2) NOT NULL CHECK (requested_amount > 0),
		payable_amount NUMERIC(18,2),
		paid BOOLEAN,
		payment_support_ref VARCHAR(255),
		state VARCHAR(40) NOT NULL DEFAULT 'PENDING_APPROVAL',
		approval_outcome VARCHAR(20),
		source_withholding NUMERIC(18,2),
		vat_withholding NUMERIC(18,2),
		ica_withholding NUMERIC(18,2),
		other_deductions NUMERIC(18,2),
		rejection_reason VARCHAR(200),
		rejection_detail TEXT,
		legalized BOOLEAN NOT NULL DEFAULT FALSE,
		legalized_by VARCHAR(120),
		support_ref VARCHAR(255),
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		approved_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_advance_requests_state ON advance_requests (state);`,
	`CREATE INDEX IF NOT EXISTS idx_advance_requests_requester ON advance_requests (requester_id);`,
	`CREATE INDEX IF NOT EXISTS idx_advance_requests_approver_email ON advance_requests (LOWER(TRIM(approver_email)));`,
}

// Migrate applies the schema idempotently in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrationStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
