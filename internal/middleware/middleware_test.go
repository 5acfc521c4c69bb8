package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/internal/service"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
	"github.com/noah-isme/advance-api/pkg/middleware/requestid"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newProtectedRouter(role models.UserRole, allowed ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: 7, Role: role}}))
	router.POST("/advances/:id/approve", RequireRoles(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/advances/1/approve", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRoles(t *testing.T) {
	router := newProtectedRouter(models.RoleApprover, models.RoleApprover)
	require.Equal(t, http.StatusOK, serve(router, "Bearer good").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, "Basic good").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, "Bearer bad").Code)

	requester := newProtectedRouter(models.RoleRequester, models.RoleApprover)
	rec := serve(requester, "Bearer good")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "FORBIDDEN")

	admin := newProtectedRouter(models.RoleAdmin, models.RoleApprover)
	require.Equal(t, http.StatusOK, serve(admin, "Bearer good").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", RequireRoles(models.RolePayer), func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditLogsMutations(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.Middleware(), Audit(zap.New(core)))
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: 3, Role: models.RolePayer})
		c.Next()
	})
	router.POST("/advances/:id/payment", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/advances", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/advances/5/payment", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/advances", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, int64(3), fields["user_id"])
	require.Equal(t, "PAYER", fields["role"])
}

func TestMetricsLabelsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/advances/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	for _, path := range []string{"/advances/1", "/advances/2", "/wp-login.php"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	require.Contains(t, body, `http_requests_total{method="GET",path="/advances/:id",status="200"} 2`)
	require.Contains(t, body, `path="unmatched",status="404"`)
	require.NotContains(t, body, "wp-login")
	require.NotContains(t, body, `path="/metrics"`)
}
