package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/api/handler"
	"github.com/qs3c/quota_relay/internal/api/middleware"
	"github.com/qs3c/quota_relay/internal/pkg/response"
)

type Router struct {
	eventHandler *handler.EventHandler
	quotaHandler *handler.QuotaHandler
	adminHandler *handler.AdminHandler
	cfg          *config.Config
	log          zerolog.Logger
}

func NewRouter(
	eventHandler *handler.EventHandler,
	quotaHandler *handler.QuotaHandler,
	adminHandler *handler.AdminHandler,
	cfg *config.Config,
	log zerolog.Logger,
) *Router {
	return &Router{
		eventHandler: eventHandler,
		quotaHandler: quotaHandler,
		adminHandler: adminHandler,
		cfg:          cfg,
		log:          log,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.log))

	engine.GET("/healthz", func(c *gin.Context) {
		response.Success(c, nil)
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	api.Use(middleware.Auth(r.cfg.JWT.Secret))
	{
		// 网关投递的事件
		api.POST("/events", r.eventHandler.Command)
		api.POST("/callbacks", r.eventHandler.Callback)

		api.GET("/accounts/:user_id/quota", r.quotaHandler.GetQuota)

		admin := api.Group("/admin")
		admin.Use(middleware.AdminOnly(r.cfg.Bot.AdminUserID))
		{
			admin.POST("/grants", r.adminHandler.Grant)
			admin.GET("/payments", r.adminHandler.ListPayments)
			admin.GET("/payments/:id", r.adminHandler.GetPayment)
			admin.POST("/payments/:id/resolve", r.adminHandler.ResolvePayment)
			admin.GET("/accounts/:user_id/commands", r.adminHandler.RecentCommands)
		}
	}

	return engine
}
