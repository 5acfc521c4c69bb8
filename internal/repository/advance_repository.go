package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/advance-api/internal/models"
)

const advanceColumns = `a.id, a.requester_id, a.requester_name, COALESCE(u.email, '') AS requester_email,
       a.approver_id, a.approver_email, a.vendor_name, a.vendor_tax_id, a.concept, a.requested_amount,
       a.payable_amount, a.paid, a.payment_support_ref, a.state, a.approval_outcome, a.source_withholding,
       a.vat_withholding, a.ica_withholding, a.other_deductions, a.rejection_reason, a.rejection_detail,
       a.legalized, a.legalized_by, a.support_ref, a.version, a.created_at, a.approved_at, a.updated_at`

const advanceFrom = ` FROM advance_requests a LEFT JOIN users u ON u.id = a.requester_id`

// AdvanceRepository persists advance requests. It is the only writer of the
// advance_requests table.
type AdvanceRepository struct {
	db *sqlx.DB
}

// NewAdvanceRepository constructs the repository.
func NewAdvanceRepository(db *sqlx.DB) *AdvanceRepository {
	return &AdvanceRepository{db: db}
}

// Create inserts a new advance and assigns its identifier.
func (r *AdvanceRepository) Create(ctx context.Context, advance *models.AdvanceRequest) error {
	now := time.Now().UTC()
	if advance.State == "" {
		advance.State = models.AdvanceStatePendingApproval
	}
	if advance.CreatedAt.IsZero() {
		advance.CreatedAt = now
	}
	advance.UpdatedAt = now
	advance.Version = 1

	const query = `INSERT INTO advance_requests
	(requester_id, requester_name, approver_id, approver_email, vendor_name, vendor_tax_id, concept, requested_amount,
	 state, legalized, support_ref, version, created_at, updated_at)
	VALUES (:requester_id, :requester_name, :approver_id, :approver_email, :vendor_name, :vendor_tax_id, :concept,
	 :requested_amount, :state, :legalized, :support_ref, :version, :created_at, :updated_at)
	RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, advance)
	if err != nil {
		return fmt.Errorf("create advance: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("create advance: %w", err)
		}
		return fmt.Errorf("create advance: no id returned")
	}
	if err := rows.Scan(&advance.ID); err != nil {
		return fmt.Errorf("scan advance id: %w", err)
	}
	return nil
}

// GetByID fetches an advance by identifier. Missing rows return sql.ErrNoRows.
func (r *AdvanceRepository) GetByID(ctx context.Context, id int64) (*models.AdvanceRequest, error) {
	query := "SELECT " + advanceColumns + advanceFrom + " WHERE a.id = $1"
	var advance models.AdvanceRequest
	if err := r.db.GetContext(ctx, &advance, query, id); err != nil {
		return nil, err
	}
	return &advance, nil
}

// List returns advances matching the filter, newest first.
func (r *AdvanceRepository) List(ctx context.Context, filter models.AdvanceFilter) ([]models.AdvanceRequest, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT ")
	builder.WriteString(advanceColumns)
	builder.WriteString(advanceFrom)

	where, args := buildAdvanceConditions(filter)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY a.created_at DESC, a.id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var advances []models.AdvanceRequest
	if err := r.db.SelectContext(ctx, &advances, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list advances: %w", err)
	}
	return advances, nil
}

// Count returns the number of advances matching the filter, ignoring paging.
func (r *AdvanceRepository) Count(ctx context.Context, filter models.AdvanceFilter) (int, error) {
	where, args := buildAdvanceConditions(filter)
	query := "SELECT COUNT(*) FROM advance_requests a" + where
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count advances: %w", err)
	}
	return total, nil
}

// Save writes every mutable column if the stored version still matches
// advance.Version, then bumps the version. A stale version returns sql.ErrNoRows.
func (r *AdvanceRepository) Save(ctx context.Context, advance *models.AdvanceRequest) error {
	updatedAt := time.Now().UTC()
	const query = `UPDATE advance_requests SET
		approver_id = :approver_id,
		approver_email = :approver_email,
		payable_amount = :payable_amount,
		paid = :paid,
		payment_support_ref = :payment_support_ref,
		state = :state,
		approval_outcome = :approval_outcome,
		source_withholding = :source_withholding,
		vat_withholding = :vat_withholding,
		ica_withholding = :ica_withholding,
		other_deductions = :other_deductions,
		rejection_reason = :rejection_reason,
		rejection_detail = :rejection_detail,
		legalized = :legalized,
		legalized_by = :legalized_by,
		support_ref = :support_ref,
		approved_at = :approved_at,
		updated_at = :updated_at,
		version = version + 1
	WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                  advance.ID,
		"version":             advance.Version,
		"approver_id":         advance.ApproverID,
		"approver_email":      advance.ApproverEmail,
		"payable_amount":      advance.PayableAmount,
		"paid":                advance.Paid,
		"payment_support_ref": advance.PaymentSupportRef,
		"state":               advance.State,
		"approval_outcome":    advance.ApprovalOutcome,
		"source_withholding":  advance.SourceWithholding,
		"vat_withholding":     advance.VATWithholding,
		"ica_withholding":     advance.ICAWithholding,
		"other_deductions":    advance.OtherDeductions,
		"rejection_reason":    advance.RejectionReason,
		"rejection_detail":    advance.RejectionDetail,
		"legalized":           advance.Legalized,
		"legalized_by":        advance.LegalizedBy,
		"support_ref":         advance.SupportRef,
		"approved_at":         advance.ApprovedAt,
		"updated_at":          updatedAt,
	})
	if err != nil {
		return fmt.Errorf("update advance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check advance update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	advance.Version++
	advance.UpdatedAt = updatedAt
	return nil
}

func buildAdvanceConditions(filter models.AdvanceFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("a.state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequesterID > 0 {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("a.requester_id = $%d", len(args)))
	}
	if filter.ApproverEmail != "" {
		args = append(args, strings.TrimSpace(filter.ApproverEmail))
		conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(a.approver_email)) = LOWER($%d)", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
