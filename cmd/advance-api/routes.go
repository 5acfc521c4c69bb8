package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/advance-api/internal/handler"
	"github.com/noah-isme/advance-api/internal/middleware"
	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/internal/service"
	"github.com/noah-isme/advance-api/pkg/config"
	"github.com/noah-isme/advance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/advance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/advance-api/pkg/middleware/requestid"
)

type routeDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *service.MetricsService
	tokens    *service.TokenService
	advances  *handler.AdvanceHandler
	documents *handler.DocumentHandler
	health    *handler.MetricsHandler
}

func newRouter(deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(deps.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)
	if deps.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.cfg.APIPrefix)
	api.GET("/documents/download", deps.documents.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens), middleware.Audit(deps.logger.Named("audit")))

	advances := secured.Group("/advances")
	advances.POST("", deps.advances.Submit)
	advances.GET("", deps.advances.List)
	advances.GET("/export", deps.advances.Export)
	advances.GET("/:id", deps.advances.Get)
	advances.GET("/:id/documents/:kind", deps.documents.Link)
	advances.POST("/:id/approve", middleware.RequireRoles(models.RoleApprover), deps.advances.Approve)
	advances.POST("/:id/reject", middleware.RequireRoles(models.RoleApprover), deps.advances.Reject)
	advances.POST("/:id/withholding", middleware.RequireRoles(models.RoleWithholding), deps.advances.ValidateWithholding)
	advances.POST("/:id/payment", middleware.RequireRoles(models.RolePayer), deps.advances.RegisterPayment)
	advances.POST("/:id/legalization", middleware.RequireRoles(models.RoleLegalizer), deps.advances.Legalize)

	return r
}
