package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/noah-isme/advance-api/internal/models"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
	"github.com/noah-isme/advance-api/pkg/export"
	"github.com/noah-isme/advance-api/pkg/mail"
)

type advanceReader interface {
	GetByID(ctx context.Context, id int64) (*models.AdvanceRequest, error)
}

type roleEmailResolver interface {
	EmailForRole(ctx context.Context, role string) (string, error)
}

type documentResolver interface {
	Resolve(ref string) (string, error)
}

type summaryRenderer interface {
	RenderSummary(title string, fields []export.Field) ([]byte, error)
}

// NotificationConfig tunes recipients and message content.
type NotificationConfig struct {
	OpsMailbox      string
	ActionBaseURL   string
	CompanyName     string
	WithholdingRole string
	AttachSummary   bool
}

// recipientRule says who hears about an action that lands in a given state.
type recipientRule struct {
	ops         bool
	opsIfRouted bool
	role        bool
}

var notificationRules = map[models.TransitionAction]map[models.AdvanceState]recipientRule{
	models.TransitionSubmit: {
		models.AdvanceStatePendingApproval: {opsIfRouted: true},
	},
	models.TransitionApprove: {
		models.AdvanceStateValidatingWithholding: {role: true},
	},
	models.TransitionReject: {
		models.AdvanceStateRejected: {ops: true},
	},
	models.TransitionValidateWithholding: {
		models.AdvanceStatePendingPayment: {ops: true},
		models.AdvanceStateFinalized:      {},
	},
	models.TransitionRegisterPayment: {
		models.AdvanceStatePaidPendingLegalization: {ops: true},
	},
	models.TransitionLegalize: {
		models.AdvanceStateFinalized: {ops: true},
	},
}

// NotificationService turns committed transitions into per-recipient emails.
// Delivery is best-effort: failures are logged and never reach the caller of
// the transition.
type NotificationService struct {
	advances  advanceReader
	roles     roleEmailResolver
	documents documentResolver
	sender    mail.Sender
	summary   summaryRenderer
	cfg       NotificationConfig
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NotificationOption customises NotificationService.
type NotificationOption func(*NotificationService)

// WithSummaryRenderer attaches a PDF summary of the record when enabled in config.
func WithSummaryRenderer(renderer summaryRenderer) NotificationOption {
	return func(s *NotificationService) {
		s.summary = renderer
	}
}

// WithNotificationClock overrides the time source.
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(advances advanceReader, roles roleEmailResolver, documents documentResolver, sender mail.Sender, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger, opts ...NotificationOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		advances:  advances,
		roles:     roles,
		documents: documents,
		sender:    sender,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Dispatch notifies everyone interested in event. It re-reads the advance and
// reports the event as superseded when the record no longer sits in the state
// the event reached.
// Only a failed re-read is returned, so queued dispatch can retry it.
func (s *NotificationService) Dispatch(ctx context.Context, event models.TransitionEvent) error {
	log := s.logger.With(
		zap.Int64("advance_id", event.AdvanceID),
		zap.String("action", string(event.Action)),
		zap.String("state", string(event.To)),
	)
	if !event.Changed() {
		s.metrics.RecordNotification(event.Action, "skipped")
		return nil
	}

	advance, err := s.advances.GetByID(ctx, event.AdvanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("notification skipped, advance not found")
			s.metrics.RecordNotification(event.Action, "skipped")
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load advance for notification")
	}
	if advance.State != event.To {
		log.Warn("notification superseded, advance moved on before delivery",
			zap.String("current_state", string(advance.State)),
			zap.Int64("event_version", event.Version),
			zap.Int64("current_version", advance.Version),
		)
		s.metrics.RecordNotification(event.Action, "superseded")
		return nil
	}

	recipients := s.Recipients(ctx, event.Action, advance)
	if len(recipients) == 0 {
		log.Warn("notification skipped, no recipients")
		s.metrics.RecordNotification(event.Action, "skipped")
		return nil
	}

	attachments := s.attachments(event.Action, advance, log)
	opts := MessageOptions{ActionBaseURL: s.cfg.ActionBaseURL, CompanyName: s.cfg.CompanyName, Now: s.now()}
	for _, recipient := range recipients {
		s.sendOne(ctx, advance, recipient, attachments, opts, event.Action, log)
	}
	return nil
}

// Recipients computes the deduplicated recipient list for action landing the
// advance in its current state. Unknown combinations yield nothing.
func (s *NotificationService) Recipients(ctx context.Context, action models.TransitionAction, advance *models.AdvanceRequest) []string {
	rule, ok := notificationRules[action][advance.State]
	if !ok {
		return nil
	}
	candidates := []string{advance.RequesterEmail}
	if rule.ops || (rule.opsIfRouted && hasApprover(advance)) {
		candidates = append(candidates, s.cfg.OpsMailbox)
	}
	if rule.role {
		candidates = append(candidates, s.roleEmail(ctx, advance.ID))
	}
	return normalizeRecipients(candidates...)
}

func (s *NotificationService) roleEmail(ctx context.Context, advanceID int64) string {
	if s.roles == nil || strings.TrimSpace(s.cfg.WithholdingRole) == "" {
		return ""
	}
	email, err := s.roles.EmailForRole(ctx, s.cfg.WithholdingRole)
	if err != nil {
		level := s.logger.Warn
		if !appErrors.Is(err, appErrors.ErrNotFound) {
			level = s.logger.Error
		}
		level("role email unavailable", zap.Int64("advance_id", advanceID), zap.String("role", s.cfg.WithholdingRole), zap.Error(err))
		return ""
	}
	return email
}

func (s *NotificationService) sendOne(ctx context.Context, advance *models.AdvanceRequest, recipient string, attachments []mail.Attachment, opts MessageOptions, action models.TransitionAction, log *zap.Logger) {
	rendered, err := RenderAdvanceMessage(advance, recipient, opts)
	if err != nil {
		log.Error("notification render failed", zap.String("recipient", recipient), zap.Error(err))
		s.metrics.RecordNotification(action, "failed")
		return
	}
	err = s.sender.Send(ctx, mail.Message{
		To:          recipient,
		Subject:     rendered.Subject,
		HTMLBody:    rendered.HTMLBody,
		Attachments: attachments,
	})
	if err != nil {
		log.Error("notification delivery failed",
			zap.String("recipient", recipient),
			zap.String("code", appErrors.ErrTransport.Code),
			zap.Error(err),
		)
		s.metrics.RecordNotification(action, "failed")
		return
	}
	log.Info("notification sent", zap.String("recipient", recipient))
	s.metrics.RecordNotification(action, "sent")
}

// attachments resolves the stage document and, when configured, a PDF summary.
// Resolution problems only drop the attachment.
func (s *NotificationService) attachments(action models.TransitionAction, advance *models.AdvanceRequest, log *zap.Logger) []mail.Attachment {
	result := make([]mail.Attachment, 0, 2)

	ref := advance.SupportRef
	if action == models.TransitionRegisterPayment {
		ref = advance.PaymentSupportRef
	}
	if ref != nil && strings.TrimSpace(*ref) != "" {
		if attachment, err := s.loadDocument(*ref); err != nil {
			log.Warn("attachment unavailable, sending without it", zap.String("ref", *ref), zap.Error(err))
		} else {
			result = append(result, attachment)
		}
	}

	if s.cfg.AttachSummary && s.summary != nil {
		content, err := s.summary.RenderSummary(advanceSubject(advance.ID), advanceFields(advance))
		if err != nil {
			log.Warn("summary attachment failed", zap.Error(err))
		} else {
			result = append(result, mail.Attachment{
				Filename:    fmt.Sprintf("anticipo-%d.pdf", advance.ID),
				ContentType: "application/pdf",
				Content:     content,
			})
		}
	}
	return result
}

func (s *NotificationService) loadDocument(ref string) (mail.Attachment, error) {
	if s.documents == nil {
		return mail.Attachment{}, fmt.Errorf("document store not configured")
	}
	path, err := s.documents.Resolve(ref)
	if err != nil {
		return mail.Attachment{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return mail.Attachment{}, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read document")
	}
	return mail.Attachment{
		Filename:    filepath.Base(path),
		ContentType: mimetype.Detect(content).String(),
		Content:     content,
	}, nil
}

func hasApprover(advance *models.AdvanceRequest) bool {
	if advance.ApproverID != nil && *advance.ApproverID > 0 {
		return true
	}
	return advance.ApproverEmail != nil && strings.TrimSpace(*advance.ApproverEmail) != ""
}

// normalizeRecipients trims, drops blanks and removes case-insensitive
// duplicates, keeping first-seen order.
func normalizeRecipients(candidates ...string) []string {
	seen := make(map[string]struct{}, len(candidates))
	result := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
