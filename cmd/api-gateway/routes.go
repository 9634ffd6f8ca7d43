package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/handler"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clearance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clearance-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, a *app, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics, "/metrics"))
	r.Use(middleware.WithResponseMeta())
	r.MaxMultipartMemory = cfg.Documents.MaxFileSizeBytes + 1<<20

	metricsHandler := handler.NewMetricsHandler(a.metrics, a.checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(a.auth)
	departmentHandler := handler.NewDepartmentHandler(a.departments)
	clearanceHandler := handler.NewClearanceHandler(a.clearances, a.certificates)
	documentHandler := handler.NewDocumentHandler(a.documents)
	officerHandler := handler.NewOfficerHandler(a.officers)
	adminHandler := handler.NewAdminHandler(a.admin, a.dashboard)
	userHandler := handler.NewUserHandler(a.accounts)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/departments", departmentHandler.Public)
	api.GET("/faculties", departmentHandler.PublicFaculties)
	api.GET("/documents/:id/download", documentHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth), middleware.Actor(a.users))
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)

	student := secured.Group("/me", middleware.RequireRoles(models.RoleStudent))
	student.GET("/clearance", clearanceHandler.Dashboard)
	student.POST("/clearance/submit", clearanceHandler.Submit)
	student.GET("/clearance/certificate", clearanceHandler.Certificate)
	student.GET("/documents", documentHandler.List)
	student.POST("/documents", documentHandler.Upload)
	student.DELETE("/documents/:id", documentHandler.Delete)

	officer := secured.Group("/officer", middleware.RequireRoles(models.RoleOfficer))
	officer.GET("/queue", officerHandler.Queue)
	officer.GET("/history", officerHandler.History)
	officer.GET("/stats", officerHandler.Stats)
	officer.GET("/clearances/:id", clearanceHandler.Detail)
	officer.POST("/clearances/:id/decision", clearanceHandler.Decide)

	admin := secured.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.GET("/clearances", adminHandler.Clearances)
	admin.GET("/clearances/export", adminHandler.Export)
	admin.GET("/clearances/:id", clearanceHandler.Detail)
	admin.PATCH("/clearances/:id/remarks", adminHandler.UpdateRemarks)
	admin.GET("/departments", departmentHandler.List)
	admin.POST("/departments", departmentHandler.Create)
	admin.PUT("/departments/:id", departmentHandler.Update)
	admin.GET("/faculties", departmentHandler.Faculties)
	admin.GET("/officers", adminHandler.Officers)
	admin.POST("/officers", adminHandler.CreateOfficer)
	admin.GET("/users", userHandler.List)
	admin.GET("/users/:id", userHandler.Get)
	admin.PATCH("/users/:id", userHandler.Update)
	admin.GET("/audit-logs", adminHandler.AuditLogs)

	return r
}
