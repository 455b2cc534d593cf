package handlers

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	paperbridge "github.com/paperbridge/paperbridge"
	"github.com/paperbridge/paperbridge/schemas"
)

// AnalyzeHandler manages submission and result polling.
type AnalyzeHandler struct {
	gateway *paperbridge.Gateway
	logger  schemas.Logger
}

// NewAnalyzeHandler creates a new analyze handler instance.
func NewAnalyzeHandler(gateway *paperbridge.Gateway, logger schemas.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// RegisterRoutes registers the submission and polling routes.
func (h *AnalyzeHandler) RegisterRoutes(r *router.Router) {
	r.POST("/analyze", h.Analyze)
	r.GET("/result/{request_id}", h.Result)
}

// Analyze handles POST /analyze. It returns immediately with a request id;
// workers process in the background.
func (h *AnalyzeHandler) Analyze(ctx *fasthttp.RequestCtx) {
	var req schemas.AnalyzeRequest
	if err := sonic.Unmarshal(ctx.PostBody(), &req); err != nil {
		SendError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("invalid request format: %v", err), h.logger)
		return
	}

	result, err := h.gateway.Submit(&req)
	switch {
	case errors.Is(err, paperbridge.ErrEmptyInput):
		SendError(ctx, fasthttp.StatusBadRequest, "No text provided in request", h.logger)
	case errors.Is(err, paperbridge.ErrOverloaded):
		SendError(ctx, fasthttp.StatusTooManyRequests, "Server overloaded, try again later", h.logger)
	case err != nil:
		SendError(ctx, fasthttp.StatusInternalServerError, err.Error(), h.logger)
	default:
		SendJSON(ctx, result, h.logger)
	}
}

// Result handles GET /result/{request_id}: the full lifecycle record, or 404
// for an unknown id. Pipeline errors are record fields, never HTTP errors.
func (h *AnalyzeHandler) Result(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("request_id").(string)
	record, ok := h.gateway.Result(id)
	if !ok {
		SendError(ctx, fasthttp.StatusNotFound, "Unknown request_id", h.logger)
		return
	}
	SendJSON(ctx, record, h.logger)
}
