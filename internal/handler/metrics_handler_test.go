package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advance-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := ReadinessCheck{Name: "postgres", Check: func(ctx context.Context) error { return nil }}
	down := ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return errors.New("connection refused") }}

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, ok).Ready(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"postgres":"ok"`)

	c, w = newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, ok, down).Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/advances", http.StatusOK, 0)

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(metrics).Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "http_requests_total")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil).Prometheus(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
