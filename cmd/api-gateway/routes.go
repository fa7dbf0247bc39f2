package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/academy-enrollment-api/api/swagger"
	"github.com/noah-isme/academy-enrollment-api/internal/middleware"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/pkg/config"
	"github.com/noah-isme/academy-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-enrollment-api/pkg/middleware/requestid"
)

func (a *app) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", a.healthHandler.Health)
	r.GET("/ready", a.healthHandler.Ready)
	if a.metrics != nil {
		r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}
	r.Static(a.storage.PublicPrefix(), a.storage.Dir())
	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)
	api.POST("/auth/login", a.authHandler.Login)
	api.POST("/students/register", a.authHandler.Register)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth))

	students := secured.Group("")
	students.Use(middleware.RequireRoles(models.RoleStudent, models.RoleAdmin))
	students.POST("/enrollments", a.enrollmentHandler.Create)
	students.GET("/enrollments", a.enrollmentHandler.List)
	students.POST("/installments/:id/voucher", a.paymentHandler.AttachVoucher)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/enrollments", a.enrollmentHandler.AdminList)
	admin.PUT("/enrollments/:id/status", a.enrollmentHandler.SetStatus)
	admin.GET("/enrollments/:id/transitions", a.enrollmentHandler.Transitions)
	admin.GET("/installments", a.installmentHandler.List)
	admin.GET("/installments/export", a.installmentHandler.Export)
	admin.POST("/installments/:id/approve", a.paymentHandler.Approve)
	admin.POST("/installments/:id/reject-voucher", a.paymentHandler.RejectVoucher)
	admin.GET("/students/:id/notifications", a.notificationHandler.ListForStudent)

	return r
}
