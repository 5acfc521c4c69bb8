package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/models"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
)

const (
	defaultAdvancePageSize = 20
	maxAdvancePageSize     = 200
	mimeSniffBytes         = 3072
)

type advanceStore interface {
	Create(ctx context.Context, advance *models.AdvanceRequest) error
	GetByID(ctx context.Context, id int64) (*models.AdvanceRequest, error)
	List(ctx context.Context, filter models.AdvanceFilter) ([]models.AdvanceRequest, error)
	Count(ctx context.Context, filter models.AdvanceFilter) (int, error)
	Save(ctx context.Context, advance *models.AdvanceRequest) error
}

type documentWriter interface {
	Save(content io.Reader, originalName string) (string, error)
	Delete(ref string) error
}

// TransitionPublisher hands committed transitions to the notification side.
type TransitionPublisher interface {
	Publish(ctx context.Context, event models.TransitionEvent) error
}

// DocumentUpload is a file received alongside a submission or payment.
type DocumentUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// UploadPolicy limits accepted documents. Zero values disable the checks.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedMIMEs []string
}

// AdvanceService is the workflow engine for advance requests. Every operation
// re-reads the record, checks the state guard and writes with a version check.
type AdvanceService struct {
	store     advanceStore
	documents documentWriter
	publisher TransitionPublisher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	uploads   UploadPolicy
	now       func() time.Time
}

// AdvanceServiceOption customises AdvanceService.
type AdvanceServiceOption func(*AdvanceService)

// WithUploadPolicy restricts document uploads.
func WithUploadPolicy(policy UploadPolicy) AdvanceServiceOption {
	return func(s *AdvanceService) {
		s.uploads = policy
	}
}

// WithAdvanceClock overrides the time source.
func WithAdvanceClock(now func() time.Time) AdvanceServiceOption {
	return func(s *AdvanceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAdvanceService constructs the workflow engine. publisher may be nil, in
// which case transitions are not announced.
func NewAdvanceService(store advanceStore, documents documentWriter, publisher TransitionPublisher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, opts ...AdvanceServiceOption) *AdvanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AdvanceService{
		store:     store,
		documents: documents,
		publisher: publisher,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit creates a new advance in PENDING_APPROVAL. An attached document is
// stored before the record is written and removed again if the write fails.
func (s *AdvanceService) Submit(ctx context.Context, req dto.SubmitAdvanceRequest, upload *DocumentUpload) (*models.AdvanceRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advance payload")
	}
	if !req.RequestedAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requestedAmount must be greater than zero")
	}
	if !req.RequestedAmount.Equal(req.RequestedAmount.Round(2)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requestedAmount allows at most two decimals")
	}

	var supportRef string
	if upload != nil {
		ref, err := s.storeUpload(upload)
		if err != nil {
			return nil, err
		}
		supportRef = ref
	}

	advance := &models.AdvanceRequest{
		RequesterID:     req.RequesterID,
		RequesterName:   strings.TrimSpace(req.RequesterName),
		ApproverID:      req.ApproverID,
		ApproverEmail:   optionalString(req.ApproverEmail),
		VendorName:      strings.TrimSpace(req.VendorName),
		VendorTaxID:     strings.TrimSpace(req.VendorTaxID),
		Concept:         strings.TrimSpace(req.Concept),
		RequestedAmount: req.RequestedAmount,
		State:           models.AdvanceStatePendingApproval,
		SupportRef:      optionalString(supportRef),
		CreatedAt:       s.now().UTC(),
	}

	start := time.Now()
	err := s.store.Create(ctx, advance)
	s.metrics.ObserveDBQuery("advance_create", time.Since(start))
	if err != nil {
		s.discardDocument(supportRef)
		s.metrics.RecordTransition(models.TransitionSubmit, models.AdvanceStatePendingApproval, appErrors.ErrPersistence.Code)
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create advance")
	}

	// read back to pick up joined requester data
	if stored, err := s.store.GetByID(ctx, advance.ID); err == nil {
		advance = stored
	} else {
		s.logger.Warn("advance re-read after create failed", zap.Int64("advance_id", advance.ID), zap.Error(err))
	}

	s.metrics.RecordTransition(models.TransitionSubmit, advance.State, "ok")
	s.publish(ctx, models.TransitionEvent{
		AdvanceID:  advance.ID,
		Action:     models.TransitionSubmit,
		To:         advance.State,
		Version:    advance.Version,
		OccurredAt: s.now().UTC(),
	})
	return advance, nil
}

// Approve moves a pending advance to withholding validation.
func (s *AdvanceService) Approve(ctx context.Context, id int64) (*models.AdvanceRequest, error) {
	return s.transition(ctx, id, models.TransitionApprove, models.AdvanceStatePendingApproval, func(advance *models.AdvanceRequest) (string, error) {
		outcome := models.ApprovalOutcomeApproved
		approvedAt := s.now().UTC()
		advance.ApprovalOutcome = &outcome
		advance.ApprovedAt = &approvedAt
		advance.State = models.AdvanceStateValidatingWithholding
		return "", nil
	})
}

// Reject closes a pending advance. The rejection reason is fixed; the optional
// detail is kept alongside it.
func (s *AdvanceService) Reject(ctx context.Context, id int64, req dto.RejectAdvanceRequest) (*models.AdvanceRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	return s.transition(ctx, id, models.TransitionReject, models.AdvanceStatePendingApproval, func(advance *models.AdvanceRequest) (string, error) {
		outcome := models.ApprovalOutcomeRejected
		decidedAt := s.now().UTC()
		reason := models.ActiveAdvanceReason
		advance.ApprovalOutcome = &outcome
		advance.ApprovedAt = &decidedAt
		advance.RejectionReason = &reason
		if detail := optionalString(req.Detail); detail != nil {
			advance.RejectionDetail = detail
		}
		advance.State = models.AdvanceStateRejected
		return "", nil
	})
}

// ValidateWithholding records the deductions, computes the payable amount and
// routes the advance to payment or closes it.
func (s *AdvanceService) ValidateWithholding(ctx context.Context, id int64, req dto.ValidateWithholdingRequest) (*models.AdvanceRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withholding payload")
	}
	withholdings := models.Withholdings{
		Source:          req.SourceWithholding,
		VAT:             req.VATWithholding,
		ICA:             req.ICAWithholding,
		OtherDeductions: req.OtherDeductions,
	}
	deductions := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"sourceWithholding", withholdings.Source},
		{"vatWithholding", withholdings.VAT},
		{"icaWithholding", withholdings.ICA},
		{"otherDeductions", withholdings.OtherDeductions},
	}
	for _, d := range deductions {
		if d.amount.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrValidation, d.name+" must not be negative")
		}
		if !d.amount.Equal(d.amount.Round(2)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, d.name+" allows at most two decimals")
		}
	}
	outcome := models.ResolveWithholdingOutcome(req.Outcome, strings.TrimSpace(req.Reason))

	return s.transition(ctx, id, models.TransitionValidateWithholding, models.AdvanceStateValidatingWithholding, func(advance *models.AdvanceRequest) (string, error) {
		payable := models.PayableAmount(advance.RequestedAmount, withholdings)
		if payable.IsNegative() {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("deductions exceed the requested amount by %s", payable.Neg().StringFixed(2)))
		}
		advance.SourceWithholding = decimal.NewNullDecimal(withholdings.Source)
		advance.VATWithholding = decimal.NewNullDecimal(withholdings.VAT)
		advance.ICAWithholding = decimal.NewNullDecimal(withholdings.ICA)
		advance.OtherDeductions = decimal.NewNullDecimal(withholdings.OtherDeductions)
		advance.PayableAmount = decimal.NewNullDecimal(payable)
		if reason := optionalString(req.Reason); reason != nil {
			advance.RejectionReason = reason
		}
		if detail := optionalString(req.ReasonDetail); detail != nil {
			advance.RejectionDetail = detail
		}
		advance.State = outcome.NextState()
		return "", nil
	})
}

// RegisterPayment records the payment flag and its support. Only paid=true
// moves the advance forward. An uploaded file takes precedence over SupportRef.
func (s *AdvanceService) RegisterPayment(ctx context.Context, id int64, req dto.RegisterPaymentRequest, upload *DocumentUpload) (*models.AdvanceRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	supportRef := strings.TrimSpace(req.SupportRef)
	if supportRef != "" && !validDocumentRef(supportRef) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "supportRef must be a relative document reference")
	}
	paid := *req.Paid

	return s.transition(ctx, id, models.TransitionRegisterPayment, models.AdvanceStatePendingPayment, func(advance *models.AdvanceRequest) (string, error) {
		var stored string
		if upload != nil {
			ref, err := s.storeUpload(upload)
			if err != nil {
				return "", err
			}
			stored = ref
			supportRef = ref
		}
		advance.Paid = &paid
		if supportRef != "" {
			advance.PaymentSupportRef = &supportRef
		}
		if paid {
			advance.State = models.AdvanceStatePaidPendingLegalization
		}
		return stored, nil
	})
}

// Legalize records the legalization. Only legalized=true finalizes the advance.
func (s *AdvanceService) Legalize(ctx context.Context, id int64, req dto.LegalizeRequest) (*models.AdvanceRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid legalization payload")
	}
	legalized := *req.Legalized
	legalizedBy := optionalString(req.LegalizedBy)
	if legalized && legalizedBy == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "legalizedBy is required when legalized is true")
	}

	return s.transition(ctx, id, models.TransitionLegalize, models.AdvanceStatePaidPendingLegalization, func(advance *models.AdvanceRequest) (string, error) {
		advance.Legalized = legalized
		if legalizedBy != nil {
			advance.LegalizedBy = legalizedBy
		}
		if legalized {
			advance.State = models.AdvanceStateFinalized
		}
		return "", nil
	})
}

// Get returns one advance. Requesters only see their own.
func (s *AdvanceService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.AdvanceRequest, error) {
	advance, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, advance) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "advance belongs to another requester")
	}
	return advance, nil
}

// List returns a page of advances visible to actor, newest first.
func (s *AdvanceService) List(ctx context.Context, query dto.AdvanceQuery, actor *models.JWTClaims) ([]models.AdvanceRequest, *models.Pagination, error) {
	for _, state := range query.States {
		if !state.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown state %q", state))
		}
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = defaultAdvancePageSize
	}
	if size > maxAdvancePageSize {
		size = maxAdvancePageSize
	}

	filter := models.AdvanceFilter{
		States:        query.States,
		ApproverEmail: strings.TrimSpace(query.ApproverEmail),
		Limit:         size,
		Offset:        (page - 1) * size,
	}
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.SeesAllAdvances() {
		filter.RequesterID = actor.UserID
	}

	start := time.Now()
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to count advances")
	}
	advances, err := s.store.List(ctx, filter)
	s.metrics.ObserveDBQuery("advance_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list advances")
	}
	if advances == nil {
		advances = []models.AdvanceRequest{}
	}
	return advances, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// transition runs the load/guard/apply/save/publish cycle shared by every
// state-changing operation. apply may return a document reference it stored;
// that document is deleted when the write fails.
func (s *AdvanceService) transition(ctx context.Context, id int64, action models.TransitionAction, from models.AdvanceState, apply func(*models.AdvanceRequest) (string, error)) (*models.AdvanceRequest, error) {
	advance, err := s.load(ctx, id)
	if err != nil {
		s.metrics.RecordTransition(action, "", appErrors.FromError(err).Code)
		return nil, err
	}
	if advance.State != from {
		s.metrics.RecordTransition(action, advance.State, appErrors.ErrInvalidTransition.Code)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("advance %d is %s; %s requires %s", advance.ID, advance.State, strings.ToLower(string(action)), from))
	}

	previous := advance.State
	stored, err := apply(advance)
	if err != nil {
		s.metrics.RecordTransition(action, previous, appErrors.FromError(err).Code)
		return nil, err
	}

	start := time.Now()
	err = s.store.Save(ctx, advance)
	s.metrics.ObserveDBQuery("advance_save", time.Since(start))
	if err != nil {
		s.discardDocument(stored)
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordTransition(action, advance.State, appErrors.ErrConflict.Code)
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("advance %d was modified concurrently", advance.ID))
		}
		s.metrics.RecordTransition(action, advance.State, appErrors.ErrPersistence.Code)
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to save advance")
	}

	s.metrics.RecordTransition(action, advance.State, "ok")
	if advance.State != previous {
		s.publish(ctx, models.TransitionEvent{
			AdvanceID:  advance.ID,
			Action:     action,
			From:       previous,
			To:         advance.State,
			Version:    advance.Version,
			OccurredAt: s.now().UTC(),
		})
	}
	return advance, nil
}

func (s *AdvanceService) load(ctx context.Context, id int64) (*models.AdvanceRequest, error) {
	if id <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "advance id must be positive")
	}
	start := time.Now()
	advance, err := s.store.GetByID(ctx, id)
	s.metrics.ObserveDBQuery("advance_get", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("advance %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load advance")
	}
	return advance, nil
}

func (s *AdvanceService) publish(ctx context.Context, event models.TransitionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("transition publish failed",
			zap.Int64("advance_id", event.AdvanceID),
			zap.String("action", string(event.Action)),
			zap.String("state", string(event.To)),
			zap.Error(err),
		)
	}
}

func (s *AdvanceService) storeUpload(upload *DocumentUpload) (string, error) {
	if upload.Content == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "uploaded document is empty")
	}
	if s.uploads.MaxBytes > 0 && upload.Size > s.uploads.MaxBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document exceeds %d bytes", s.uploads.MaxBytes))
	}

	head := make([]byte, mimeSniffBytes)
	n, err := io.ReadFull(upload.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read uploaded document")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "uploaded document is empty")
	}
	if len(s.uploads.AllowedMIMEs) > 0 {
		detected := mimetype.Detect(head[:n])
		if !mimeAllowed(detected, s.uploads.AllowedMIMEs) {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document type %s is not allowed", detected.String()))
		}
	}

	content := io.MultiReader(bytes.NewReader(head[:n]), upload.Content)
	if s.uploads.MaxBytes > 0 {
		content = io.LimitReader(content, s.uploads.MaxBytes)
	}
	ref, err := s.documents.Save(content, upload.Filename)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store document")
	}
	return ref, nil
}

func (s *AdvanceService) discardDocument(ref string) {
	if ref == "" {
		return
	}
	if err := s.documents.Delete(ref); err != nil {
		s.logger.Warn("orphan document cleanup failed", zap.String("ref", ref), zap.Error(err))
	}
}

func mimeAllowed(detected *mimetype.MIME, allowed []string) bool {
	for m := detected; m != nil; m = m.Parent() {
		for _, candidate := range allowed {
			if m.Is(candidate) {
				return true
			}
		}
	}
	return false
}

func canSee(actor *models.JWTClaims, advance *models.AdvanceRequest) bool {
	if actor == nil {
		return false
	}
	return actor.Role.SeesAllAdvances() || actor.UserID == advance.RequesterID
}

func validDocumentRef(ref string) bool {
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`) {
		return false
	}
	for _, segment := range strings.FieldsFunc(ref, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return false
		}
	}
	return true
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
