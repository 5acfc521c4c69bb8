package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/advance-api/internal/models"
)

// SubmitAdvanceRequest payload for creating a new advance request.
type SubmitAdvanceRequest struct {
	RequesterID     int64           `json:"requesterId" form:"requesterId" validate:"required,gt=0"`
	RequesterName   string          `json:"requesterName" form:"requesterName" validate:"required,max=120"`
	ApproverID      *int64          `json:"approverId,omitempty" form:"approverId" validate:"omitempty,gt=0"`
	ApproverEmail   string          `json:"approverEmail,omitempty" form:"approverEmail" validate:"omitempty,email"`
	VendorName      string          `json:"vendorName" form:"vendorName" validate:"required,max=200"`
	VendorTaxID     string          `json:"vendorTaxId" form:"vendorTaxId" validate:"max=40"`
	Concept         string          `json:"concept" form:"concept" validate:"required,max=1000"`
	RequestedAmount decimal.Decimal `json:"requestedAmount" form:"requestedAmount"`
}

// RejectAdvanceRequest carries the optional explanation for a rejection.
type RejectAdvanceRequest struct {
	Detail string `json:"detail" validate:"max=1000"`
}

// ValidateWithholdingRequest carries the deductions and routing decision.
// Outcome is optional; when empty it is derived from Reason.
type ValidateWithholdingRequest struct {
	SourceWithholding decimal.Decimal           `json:"sourceWithholding"`
	VATWithholding    decimal.Decimal           `json:"vatWithholding"`
	ICAWithholding    decimal.Decimal           `json:"icaWithholding"`
	OtherDeductions   decimal.Decimal           `json:"otherDeductions"`
	Outcome           models.WithholdingOutcome `json:"outcome" validate:"omitempty,oneof=ACTIVE_ADVANCE CLOSED"`
	Reason            string                    `json:"reason" validate:"max=200"`
	ReasonDetail      string                    `json:"reasonDetail" validate:"max=1000"`
}

// RegisterPaymentRequest records whether the advance was paid.
type RegisterPaymentRequest struct {
	Paid       *bool  `json:"paid" form:"paid" validate:"required"`
	SupportRef string `json:"supportRef,omitempty" form:"supportRef" validate:"max=255"`
}

// LegalizeRequest records whether the advance was legalized and by whom.
type LegalizeRequest struct {
	Legalized   *bool  `json:"legalized" validate:"required"`
	LegalizedBy string `json:"legalizedBy" validate:"max=120"`
}

// AdvanceQuery mirrors supported listing filters.
type AdvanceQuery struct {
	States        []models.AdvanceState
	ApproverEmail string
	Page          int
	PageSize      int
}

// DocumentKind selects which attachment of an advance is addressed.
type DocumentKind string

const (
	DocumentKindSupport DocumentKind = "support"
	DocumentKindPayment DocumentKind = "payment"
)

// DocumentLinkResponse returns a signed, expiring download URL.
type DocumentLinkResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
