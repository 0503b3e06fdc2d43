package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/meetscope/meetscope/internal/app/orch"
	"github.com/meetscope/meetscope/internal/config"
)

// SetupRouter wires the two inbound surfaces: the monitor gateway and
// the platform webhook. ctx is the server's lifetime context; captures
// started by webhooks run on it, not on the webhook request's context.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.POST("/monitor", handleMonitor(o))
	r.POST("/webhook", handleWebhook(ctx, o))
	r.GET("/healthz", handleHealthz(o))

	return r
}
