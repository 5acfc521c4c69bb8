package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/advance-api/pkg/errors"
)

type roleDirectoryStore interface {
	EmailForRole(ctx context.Context, role string) (string, error)
}

// RoleDirectoryService resolves a functional role name to the email of a user
// holding it, with optional caching.
type RoleDirectoryService struct {
	store   roleDirectoryStore
	cache   *CacheService
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRoleDirectoryService constructs the service. cache may be nil.
func NewRoleDirectoryService(store roleDirectoryStore, cache *CacheService, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *RoleDirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleDirectoryService{store: store, cache: cache, ttl: ttl, metrics: metrics, logger: logger}
}

// EmailForRole returns the email of the first user holding role. It returns a
// NOT_FOUND error when nobody holds the role.
func (s *RoleDirectoryService) EmailForRole(ctx context.Context, role string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if normalized == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "role is required")
	}
	key := "role-email:" + normalized

	var cached string
	if s.cache.Get(ctx, key, &cached) && cached != "" {
		return cached, nil
	}

	start := time.Now()
	email, err := s.store.EmailForRole(ctx, normalized)
	s.metrics.ObserveDBQuery("role_email", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no user holds role "+role)
		}
		return "", appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to resolve role email")
	}
	email = strings.TrimSpace(email)
	s.cache.Set(ctx, key, email, s.ttl)
	return email, nil
}
