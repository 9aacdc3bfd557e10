package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/regflow-io/regflow-api/api/swagger"
	"github.com/regflow-io/regflow-api/internal/handler"
	internalmiddleware "github.com/regflow-io/regflow-api/internal/middleware"
	"github.com/regflow-io/regflow-api/internal/models"
	"github.com/regflow-io/regflow-api/internal/repository"
	"github.com/regflow-io/regflow-api/internal/service"
	"github.com/regflow-io/regflow-api/pkg/cache"
	"github.com/regflow-io/regflow-api/pkg/config"
	"github.com/regflow-io/regflow-api/pkg/database"
	"github.com/regflow-io/regflow-api/pkg/erp"
	"github.com/regflow-io/regflow-api/pkg/lock"
	"github.com/regflow-io/regflow-api/pkg/logger"
	corsmiddleware "github.com/regflow-io/regflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/regflow-io/regflow-api/pkg/middleware/requestid"
)

// @title RegFlow API
// @version 1.0.0
// @description ERP registration request approval and sync service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The template cache degrades to direct reads without Redis.
		logr.Sugar().Warnw("redis unavailable, template caching disabled", "error", err)
		redisClient = nil
	}

	erpClient := erp.NewClient(cfg.ERP.BaseURL, cfg.ERP.APIKey, cfg.ERP.LookupTimeout, cfg.ERP.PushTimeout)

	requestRepo := repository.NewRequestRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	fieldChangeRepo := repository.NewFieldChangeRepository(db)
	templateRepo := repository.NewCachedTemplateRepository(
		repository.NewTemplateRepository(db), redisClient, cfg.Bulk.TemplateCacheTTL, logr)

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	locks := lock.NewKeyed()
	workflowSvc := service.NewWorkflowService(workflowRepo, groupRepo, logr)
	fieldChangeSvc := service.NewFieldChangeService(fieldChangeRepo, logr)
	syncSvc := service.NewSyncService(requestRepo, erpClient, templateRepo, metricsSvc, locks, logr)
	approvalSvc := service.NewApprovalService(
		requestRepo, workflowSvc, fieldChangeSvc, syncSvc, templateRepo, erpClient, metricsSvc, validate, locks, logr)
	reconcileSvc := service.NewReconcileService(
		templateRepo, erpClient, requestRepo, metricsSvc, logr, cfg.Bulk.LookupConcurrency, cfg.Bulk.MaxRows)

	var requestHandler *handler.RequestHandler
	if cfg.Exports.Enabled {
		exportSvc := service.NewExportService(requestRepo, fieldChangeSvc, logr)
		requestHandler = handler.NewRequestHandler(approvalSvc, syncSvc, fieldChangeSvc, exportSvc)
	} else {
		requestHandler = handler.NewRequestHandler(approvalSvc, syncSvc, fieldChangeSvc, nil)
	}
	bulkHandler := handler.NewBulkHandler(reconcileSvc)
	workflowHandler := handler.NewWorkflowHandler(workflowSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(cfg.JWT.Secret))

	requests := api.Group("/requests")
	requests.GET("", requestHandler.List)
	requests.GET("/pending", internalmiddleware.RequireRoles(models.RoleApprover), requestHandler.ListPending)
	requests.GET("/:id", requestHandler.Get)
	requests.GET("/:id/field-changes", requestHandler.FieldChanges)
	requests.GET("/:id/history/export", requestHandler.ExportHistory)
	requests.POST("", internalmiddleware.RequireRoles(models.RoleRequester), requestHandler.Create)
	requests.PUT("/:id", internalmiddleware.RequireRoles(models.RoleRequester), requestHandler.Update)
	requests.DELETE("/:id", internalmiddleware.RequireRoles(models.RoleRequester), requestHandler.Delete)
	requests.POST("/:id/submit", internalmiddleware.RequireRoles(models.RoleRequester), requestHandler.Submit)
	requests.POST("/:id/retry-sync", internalmiddleware.RequireRoles(models.RoleRequester), requestHandler.RetrySync)
	requests.POST("/:id/approve", internalmiddleware.RequireRoles(models.RoleApprover), requestHandler.Approve)
	requests.POST("/:id/reject", internalmiddleware.RequireRoles(models.RoleApprover), requestHandler.Reject)
	requests.POST("/:id/send-back", internalmiddleware.RequireRoles(models.RoleApprover), requestHandler.SendBack)

	bulk := api.Group("/bulk", internalmiddleware.RequireRoles(models.RoleRequester))
	bulk.POST("/validate", bulkHandler.Validate)
	bulk.POST("/import", bulkHandler.Import)

	api.GET("/templates/:id/workflow", workflowHandler.Preview)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
