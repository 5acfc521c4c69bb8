package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdvanceState is the workflow position of an advance request.
type AdvanceState string

const (
	AdvanceStatePendingApproval         AdvanceState = "PENDING_APPROVAL"
	AdvanceStateValidatingWithholding   AdvanceState = "VALIDATING_WITHHOLDING"
	AdvanceStateRejected                AdvanceState = "REJECTED"
	AdvanceStatePendingPayment          AdvanceState = "PENDING_PAYMENT"
	AdvanceStatePaidPendingLegalization AdvanceState = "PAID_PENDING_LEGALIZATION"
	AdvanceStateFinalized               AdvanceState = "FINALIZED"
)

var advanceStateLabels = map[AdvanceState]string{
	AdvanceStatePendingApproval:         "PENDIENTE APROBACION",
	AdvanceStateValidatingWithholding:   "VALIDANDO RETENCION",
	AdvanceStateRejected:                "RECHAZADO",
	AdvanceStatePendingPayment:          "PENDIENTE DE PAGO",
	AdvanceStatePaidPendingLegalization: "PAGADO / PENDIENTE POR LEGALIZAR",
	AdvanceStateFinalized:               "FINALIZADO",
}

// Valid reports whether s is one of the known states.
func (s AdvanceState) Valid() bool {
	_, ok := advanceStateLabels[s]
	return ok
}

// Terminal reports whether no further transition leaves s.
func (s AdvanceState) Terminal() bool {
	return s == AdvanceStateRejected || s == AdvanceStateFinalized
}

// Label is the business-facing name shown in notifications.
func (s AdvanceState) Label() string {
	if label, ok := advanceStateLabels[s]; ok {
		return label
	}
	return string(s)
}

// ApprovalOutcome records the approval decision apart from the workflow state.
type ApprovalOutcome string

const (
	ApprovalOutcomeApproved ApprovalOutcome = "APPROVED"
	ApprovalOutcomeRejected ApprovalOutcome = "REJECTED"
)

// WithholdingOutcome routes an advance after withholding validation.
type WithholdingOutcome string

const (
	// WithholdingOutcomeActiveAdvance keeps the advance open and sends it to payment.
	WithholdingOutcomeActiveAdvance WithholdingOutcome = "ACTIVE_ADVANCE"
	// WithholdingOutcomeClosed finalizes the advance without payment.
	WithholdingOutcomeClosed WithholdingOutcome = "CLOSED"
)

// ActiveAdvanceReason is the reason text that marks an advance as still active.
const ActiveAdvanceReason = "Anticipo Activo"

// Valid reports whether o is a known outcome.
func (o WithholdingOutcome) Valid() bool {
	return o == WithholdingOutcomeActiveAdvance || o == WithholdingOutcomeClosed
}

// NextState returns the state an advance moves to for the outcome.
func (o WithholdingOutcome) NextState() AdvanceState {
	if o == WithholdingOutcomeActiveAdvance {
		return AdvanceStatePendingPayment
	}
	return AdvanceStateFinalized
}

// ResolveWithholdingOutcome returns the explicit outcome when given, otherwise
// derives it from the legacy reason tag.
func ResolveWithholdingOutcome(outcome WithholdingOutcome, reasonTag string) WithholdingOutcome {
	if outcome.Valid() {
		return outcome
	}
	if reasonTag == ActiveAdvanceReason {
		return WithholdingOutcomeActiveAdvance
	}
	return WithholdingOutcomeClosed
}

// AdvanceRequest is a cash advance tracked from submission to legalization.
type AdvanceRequest struct {
	ID                int64               `db:"id" json:"id"`
	RequesterID       int64               `db:"requester_id" json:"requesterId"`
	RequesterName     string              `db:"requester_name" json:"requesterName"`
	RequesterEmail    string              `db:"requester_email" json:"requesterEmail,omitempty"`
	ApproverID        *int64              `db:"approver_id" json:"approverId,omitempty"`
	ApproverEmail     *string             `db:"approver_email" json:"approverEmail,omitempty"`
	VendorName        string              `db:"vendor_name" json:"vendorName"`
	VendorTaxID       string              `db:"vendor_tax_id" json:"vendorTaxId"`
	Concept           string              `db:"concept" json:"concept"`
	RequestedAmount   decimal.Decimal     `db:"requested_amount" json:"requestedAmount"`
	PayableAmount     decimal.NullDecimal `db:"payable_amount" json:"payableAmount"`
	Paid              *bool               `db:"paid" json:"paid,omitempty"`
	PaymentSupportRef *string             `db:"payment_support_ref" json:"paymentSupportRef,omitempty"`
	State             AdvanceState        `db:"state" json:"state"`
	ApprovalOutcome   *ApprovalOutcome    `db:"approval_outcome" json:"approvalOutcome,omitempty"`
	SourceWithholding decimal.NullDecimal `db:"source_withholding" json:"sourceWithholding"`
	VATWithholding    decimal.NullDecimal `db:"vat_withholding" json:"vatWithholding"`
	ICAWithholding    decimal.NullDecimal `db:"ica_withholding" json:"icaWithholding"`
	OtherDeductions   decimal.NullDecimal `db:"other_deductions" json:"otherDeductions"`
	RejectionReason   *string             `db:"rejection_reason" json:"rejectionReason,omitempty"`
	RejectionDetail   *string             `db:"rejection_detail" json:"rejectionDetail,omitempty"`
	Legalized         bool                `db:"legalized" json:"legalized"`
	LegalizedBy       *string             `db:"legalized_by" json:"legalizedBy,omitempty"`
	SupportRef        *string             `db:"support_ref" json:"supportRef,omitempty"`
	Version           int64               `db:"version" json:"version"`
	CreatedAt         time.Time           `db:"created_at" json:"createdAt"`
	ApprovedAt        *time.Time          `db:"approved_at" json:"approvedAt,omitempty"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updatedAt"`
}

// Withholdings bundles the deductions applied during withholding validation.
type Withholdings struct {
	Source          decimal.Decimal
	VAT             decimal.Decimal
	ICA             decimal.Decimal
	OtherDeductions decimal.Decimal
}

// Total sums every deduction.
func (w Withholdings) Total() decimal.Decimal {
	return w.Source.Add(w.VAT).Add(w.ICA).Add(w.OtherDeductions)
}

// PayableAmount computes requested minus all deductions, rounded to cents.
// The result may be negative; callers decide how to treat that.
func PayableAmount(requested decimal.Decimal, w Withholdings) decimal.Decimal {
	return requested.Sub(w.Total()).Round(2)
}

// AdvanceFilter constrains listing queries.
type AdvanceFilter struct {
	States        []AdvanceState
	RequesterID   int64
	ApproverEmail string
	Limit         int
	Offset        int
}
