// Package handlers provides the fasthttp request handlers for the gateway's
// ingress surface.
package handlers

import (
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"github.com/paperbridge/paperbridge/schemas"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Detail string `json:"detail"`
}

// SendJSON writes data as a JSON response with status 200.
func SendJSON(ctx *fasthttp.RequestCtx, data any, logger schemas.Logger) {
	body, err := sonic.Marshal(data)
	if err != nil {
		logger.Error(err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

// SendError writes a JSON error body with the given status code.
func SendError(ctx *fasthttp.RequestCtx, status int, detail string, logger schemas.Logger) {
	body, err := sonic.Marshal(errorResponse{Detail: detail})
	if err != nil {
		logger.Error(err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
