package handlers

import (
	"context"
	"fmt"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	paperbridge "github.com/paperbridge/paperbridge"
	"github.com/paperbridge/paperbridge/config"
	"github.com/paperbridge/paperbridge/schemas"
)

// Server wraps the fasthttp server and route registration for the gateway's
// HTTP surface.
type Server struct {
	cfg     *config.Config
	gateway *paperbridge.Gateway
	logger  schemas.Logger

	server *fasthttp.Server
	router *router.Router
}

// NewServer builds the router and the underlying fasthttp server.
func NewServer(cfg *config.Config, gateway *paperbridge.Gateway, logger schemas.Logger) *Server {
	r := router.New()

	NewAnalyzeHandler(gateway, logger).RegisterRoutes(r)
	NewHealthHandler(gateway, logger).RegisterRoutes(r)
	r.GET("/metrics", gateway.Metrics().Handler())

	return &Server{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
		router:  r,
		server: &fasthttp.Server{
			Handler: r.Handler,
			Name:    "paperbridge",
		},
	}
}

// Router exposes the route table, mainly for tests.
func (s *Server) Router() *router.Router {
	return s.router
}

// Start listens on the configured port and blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("listening on " + addr)
	return s.server.ListenAndServe(addr)
}

// Stop shuts the server down, waiting for in-flight requests up to ctx's
// deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}
