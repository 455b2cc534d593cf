package handlers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	paperbridge "github.com/paperbridge/paperbridge"
	"github.com/paperbridge/paperbridge/schemas"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	gateway *paperbridge.Gateway
	logger  schemas.Logger
}

// NewHealthHandler creates a new health handler instance.
func NewHealthHandler(gateway *paperbridge.Gateway, logger schemas.Logger) *HealthHandler {
	return &HealthHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// RegisterRoutes registers the probe routes.
func (h *HealthHandler) RegisterRoutes(r *router.Router) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

// Health handles GET /health.
func (h *HealthHandler) Health(ctx *fasthttp.RequestCtx) {
	SendJSON(ctx, h.gateway.Health(), h.logger)
}

// Ready handles GET /ready. Ready is true iff at least one worker is alive.
func (h *HealthHandler) Ready(ctx *fasthttp.RequestCtx) {
	SendJSON(ctx, h.gateway.Ready(), h.logger)
}
