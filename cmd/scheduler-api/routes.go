package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/tutor-schedule-api/api/swagger"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/config"
)

func registerRoutes(r *gin.Engine, cfg *config.Config, a *app) {
	r.GET("/health", a.metrics.Health)
	r.GET("/ready", a.metrics.Ready)
	r.GET("/metrics", a.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(a.tokens))

	tutors := middleware.RequireRoles(models.RoleTutor, models.RoleAdmin)
	parties := middleware.RequireRoles(models.RoleTutor, models.RoleStudent, models.RoleParent, models.RoleAdmin)

	schedules := api.Group("/schedules")
	schedules.POST("/generate", middleware.RequireRoles(models.RoleAdmin), a.schedules.Generate)
	schedules.GET("/entries", tutors, a.schedules.Entries)
	schedules.GET("/entries/export", tutors, a.schedules.Export)
	schedules.POST("/conflicts/check", tutors, a.schedules.CheckConflict)

	lessons := api.Group("/lessons")
	lessons.DELETE("/:id", tutors, a.schedules.CancelLesson)
	lessons.GET("/:id/reschedule-requests", parties, a.requests.List)
	lessons.POST("/:id/reschedule-requests", parties, a.requests.Create)

	requests := api.Group("/reschedule-requests")
	requests.POST("/:id/accept", parties, a.requests.Accept)
	requests.POST("/:id/reject", parties, a.requests.Reject)

	blocks := api.Group("/availability-blocks", middleware.RequireRoles(models.RoleTutor))
	blocks.GET("", a.blocks.List)
	blocks.POST("", a.blocks.Create)
	blocks.PATCH("/:id", a.blocks.Update)
	blocks.DELETE("/:id", a.blocks.Delete)
}
