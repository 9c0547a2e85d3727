package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *service.MetricsService
	auth       internalmiddleware.TokenValidator
	audit      internalmiddleware.AuditWriter
	gradebooks *handler.GradebookHandler
	grades     *handler.GradeHandler
	exports    *handler.ExportHandler
	me         *handler.AuthHandler
	health     *handler.MetricsHandler
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: d.cfg.CORS.AllowedOrigins}))
	r.Use(internalmiddleware.Metrics(d.metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", d.health.Health)
	r.GET("/ready", d.health.Ready)
	r.GET("/metrics", d.health.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(d.audit, d.logger, action, resource)
	}
	readers := internalmiddleware.RequireRoles(internalmiddleware.AllRoles...)
	editors := internalmiddleware.RequireRoles(internalmiddleware.TreeEditors...)
	writers := internalmiddleware.RequireRoles(internalmiddleware.GradeWriters...)

	api := r.Group(d.cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(d.auth))

	api.GET("/auth/me", readers, d.me.Me)
	api.GET("/metrics/summary", internalmiddleware.RequireRoles(models.RoleAdmin), d.health.Summary)

	gradebooks := api.Group("/gradebooks")
	gradebooks.GET("/:id", readers, d.gradebooks.Get)
	gradebooks.GET("/:id/weights", readers, d.gradebooks.Weights)
	gradebooks.POST("/:id/generate/:sectionId", editors, audit(models.AuditActionTreeChange, "gradebook"), d.gradebooks.Generate)

	tree := []struct {
		path     string
		resource string
		create   gin.HandlerFunc
		update   gin.HandlerFunc
		remove   gin.HandlerFunc
	}{
		{"/grading-periods", "grading_period", d.gradebooks.CreatePeriod, d.gradebooks.UpdatePeriod, d.gradebooks.DeletePeriod},
		{"/gradebook-items", "gradebook_item", d.gradebooks.CreateItem, d.gradebooks.UpdateItem, d.gradebooks.DeleteItem},
		{"/gradebook-item-details", "gradebook_item_detail", d.gradebooks.CreateDetail, d.gradebooks.UpdateDetail, d.gradebooks.DeleteDetail},
	}
	for _, node := range tree {
		group := api.Group(node.path, editors, audit(models.AuditActionTreeChange, node.resource))
		group.POST("", node.create)
		group.PUT("/:id", node.update)
		group.DELETE("/:id", node.remove)
	}

	sections := api.Group("/sections/:sectionId")
	sections.GET("/gradebook", readers, d.gradebooks.BySection)
	sections.GET("/scores", readers, d.grades.ScoreRows)
	sections.POST("/scores/sync", writers, audit(models.AuditActionScoresSync, "section"), d.grades.SyncScores)
	sections.GET("/period-grades", readers, d.grades.PeriodGradeRows)
	sections.POST("/period-grades/sync", writers, audit(models.AuditActionPeriodGradeSave, "section"), d.grades.SyncPeriodGrades)
	sections.GET("/final-grades", readers, d.grades.FinalGradeRows)
	sections.POST("/final-grades/sync", writers, audit(models.AuditActionFinalGradeSave, "section"), d.grades.SyncFinalGrades)
	sections.GET("/final-grades/export", readers, d.exports.GradeSheet)

	enrollments := api.Group("/enrollments/:id")
	enrollments.GET("/period-grades/:periodId", readers, d.grades.PeriodGrade)
	enrollments.PUT("/period-grades/:periodId", writers, audit(models.AuditActionPeriodGradeSave, "enrollment"), d.grades.SavePeriodGrade)
	enrollments.POST("/period-grades/:periodId/post", writers, audit(models.AuditActionPeriodGradePost, "enrollment"), d.grades.PostPeriodGrade)
	enrollments.GET("/final-grade", readers, d.grades.FinalGrade)
	enrollments.PUT("/final-grade", writers, audit(models.AuditActionFinalGradeSave, "enrollment"), d.grades.SaveFinalGrade)
	enrollments.POST("/final-grade/post", writers, audit(models.AuditActionFinalGradePost, "enrollment"), d.grades.PostFinalGrade)

	return r
}
