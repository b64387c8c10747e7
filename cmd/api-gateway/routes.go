package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/handler"
	"github.com/noah-isme/univ-lifecycle-api/internal/middleware"
	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	"github.com/noah-isme/univ-lifecycle-api/pkg/config"
	"github.com/noah-isme/univ-lifecycle-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/univ-lifecycle-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/univ-lifecycle-api/pkg/middleware/requestid"
)

type routerDeps struct {
	verifier  *service.TokenVerifier
	metrics   *service.MetricsService
	lifecycle *handler.LifecycleHandler
	admission *handler.AdmissionHandler
	catalog   *handler.CatalogHandler
	health    *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.verifier))

	operators := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	finance := middleware.RequireRoles(models.RoleAdmin, models.RoleFinance)
	admins := middleware.RequireRoles(models.RoleAdmin)

	catalog := api.Group("/catalog", admins)
	catalog.POST("/reload", deps.catalog.Reload)
	catalog.PUT("/rules/milestone-actions", deps.catalog.PutMilestoneAction)
	catalog.PUT("/rules/hold-blocks", deps.catalog.PutHoldBlock)
	catalog.PUT("/rules/milestone-impacts", deps.catalog.PutMilestoneImpact)

	entity := api.Group("/lifecycle/:entityType/:entityId")
	entity.GET("/actions", deps.lifecycle.ListActions)
	entity.GET("/actions/:action", deps.lifecycle.CheckAction)
	entity.GET("/transitions", deps.lifecycle.ListTransitions)
	entity.POST("/transitions", operators, deps.lifecycle.ApplyTransition)
	entity.POST("/milestones", finance, deps.lifecycle.CrossMilestone)
	entity.PUT("/holds/:holdCode", finance, deps.lifecycle.PlaceHold)
	entity.DELETE("/holds/:holdCode", finance, deps.lifecycle.LiftHold)
	entity.GET("/history", deps.lifecycle.History)
	entity.GET("/history/export", deps.lifecycle.ExportHistory)
	entity.GET("/pending-actions", deps.lifecycle.PendingActions)

	admissions := api.Group("/admissions", operators)
	admissions.POST("/intake", deps.admission.Intake)
	admissions.POST("/:entityId/submit", deps.admission.Submit)

	return r
}
