package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/middleware"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti/registry"
	"github.com/mx-space/confetti-bridge/internal/modules/gateway/gateway"
	"github.com/mx-space/confetti-bridge/internal/modules/preset"
	"github.com/mx-space/confetti-bridge/internal/modules/system/core/health"
	"github.com/mx-space/confetti-bridge/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.APIToken(a.cfg.APIToken)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "confetti-bridge",
		"version": "1.0.0",
	}
	r.GET("/", func(c *gin.Context) { c.JSON(200, appInfo) })

	root := r.Group("")
	gateway.RegisterRoutes(root, a.hub)
	health.RegisterRoutes(root,
		func(ctx context.Context) error { return a.rc.Raw().Ping(ctx).Err() },
		func() map[string]int {
			return map[string]int{
				"controls": len(a.registry.List()),
				"widgets":  a.hub.ClientCount(""),
				"presets":  len(a.presets.Names()),
			}
		},
		a.sched, authMW, a.started)

	api := r.Group(apiPrefix, authMW)
	api.Use(middleware.RateLimit(a.rc.Raw(), a.cfg.RateLimit))
	api.Use(middleware.Idempotence(a.rc.Raw()))

	registry.NewHandler(a.registry).RegisterRoutes(api)
	preset.NewHandler(a.presets).RegisterRoutes(api)
}
