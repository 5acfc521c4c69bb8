package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/models"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
	"github.com/noah-isme/advance-api/pkg/storage"
)

type advanceFinder interface {
	Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.AdvanceRequest, error)
}

type tokenSigner interface {
	Generate(subject, ref string) (string, time.Time, error)
	Parse(token string) (storage.DocumentClaims, error)
}

// DownloadableDocument points at a stored file ready to stream.
type DownloadableDocument struct {
	Path     string
	Filename string
}

// DocumentService issues and redeems expiring download links for the documents
// attached to an advance.
type DocumentService struct {
	advances  advanceFinder
	documents documentResolver
	signer    tokenSigner
	apiPrefix string
	logger    *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(advances advanceFinder, documents documentResolver, signer tokenSigner, apiPrefix string, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		advances:  advances,
		documents: documents,
		signer:    signer,
		apiPrefix: strings.TrimRight(apiPrefix, "/"),
		logger:    logger,
	}
}

// Link returns a signed URL for the support or payment document of an advance
// visible to actor.
func (s *DocumentService) Link(ctx context.Context, id int64, kind dto.DocumentKind, actor *models.JWTClaims) (*dto.DocumentLinkResponse, error) {
	advance, err := s.advances.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	var ref *string
	switch kind {
	case dto.DocumentKindSupport:
		ref = advance.SupportRef
	case dto.DocumentKindPayment:
		ref = advance.PaymentSupportRef
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document kind %q", kind))
	}
	if ref == nil || strings.TrimSpace(*ref) == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("advance %d has no %s document", id, kind))
	}
	if _, err := s.resolve(*ref); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(fmt.Sprintf("%d:%s", id, kind), *ref)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document link")
	}
	return &dto.DocumentLinkResponse{
		URL:       fmt.Sprintf("%s/documents/download?token=%s", s.apiPrefix, url.QueryEscape(token)),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Redeem validates a download token and locates the file it grants.
func (s *DocumentService) Redeem(token string) (*DownloadableDocument, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrExpiredToken) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "document link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid document link")
	}
	path, err := s.resolve(claims.Ref)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("document link redeemed", zap.String("subject", claims.Subject), zap.String("ref", claims.Ref))
	return &DownloadableDocument{Path: path, Filename: filepath.Base(path)}, nil
}

func (s *DocumentService) resolve(ref string) (string, error) {
	path, err := s.documents.Resolve(ref)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to resolve document")
	}
	return path, nil
}
