// Package httpapi is the gin HTTP surface: registration and login, health
// probes and the outbox operator endpoints.
package httpapi

import (
	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type routerDeps struct {
	Config    Config
	Log       *zap.Logger
	Accounts  account.Service
	Operator  OutboxOperator
	Readiness health.ReadinessChecker
}

func newEngine(d routerDeps) *gin.Engine {
	engine := gin.New(func(e *gin.Engine) {
		e.ContextWithFallback = true
	})

	for _, mw := range []gin.HandlerFunc{
		correlationMiddleware(d.Log),
		recoveryMiddleware(),
		loggerMiddleware(),
		rateLimitMiddleware(d.Config.RateLimit),
	} {
		if mw != nil {
			engine.Use(mw)
		}
	}

	if d.Config.Docs {
		registerDocs(engine)
	}

	hh := &healthHandler{readiness: d.Readiness}
	engine.GET("/health/live", hh.live)
	engine.GET("/health/ready", hh.ready)

	auth := &authHandler{accounts: d.Accounts}
	api := engine.Group("/api/v1")
	api.POST("/auth/register", auth.register)
	api.POST("/auth/login", auth.login)

	if d.Config.AdminKey != "" && d.Operator != nil {
		ob := &outboxHandler{operator: d.Operator}
		admin := api.Group("/admin", adminKeyMiddleware(d.Config.AdminKey))
		admin.GET("/outbox/abandoned", ob.abandoned)
		admin.POST("/outbox/:eventId/redeliver", ob.redeliver)
	}
	return engine
}
