// Package api exposes the stream orchestration engine over HTTP using
// Huma v2. Routes live under /api; OpenAPI documentation is served at
// /docs and Prometheus metrics at /metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/health"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/orchestrator"
	"github.com/cueplex/cueplex/internal/presets"
	"github.com/cueplex/cueplex/internal/scte35"
	"github.com/cueplex/cueplex/internal/version"
)

// Options wires the server's collaborators.
type Options struct {
	Orchestrator      *orchestrator.Orchestrator
	Injector          *scte35.Injector
	Monitor           *health.Monitor
	Presets           *presets.Store
	Bus               *events.Bus
	PrometheusHandler http.Handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	orch       *orchestrator.Orchestrator
	injector   *scte35.Injector
	monitor    *health.Monitor
	presets    *presets.Store
	bus        *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("CuePlex API", version.String())
	config.Info.Description = "Stream orchestration and SCTE-35 ad-marker injection API"
	// Empty servers list makes OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		orch:     opts.Orchestrator,
		injector: opts.Injector,
		monitor:  opts.Monitor,
		presets:  opts.Presets,
		bus:      opts.Bus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// GetMux returns the underlying HTTP ServeMux for additional setup.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// Start runs the HTTP server on the specified address, blocking until
// it stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Check API liveness",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		return &StatusResponse{
			Body: StatusData{
				Status:  "ok",
				Streams: len(s.orch.GetAllStreams()),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	s.registerStreamRoutes()
	s.registerCueRoutes()
	s.registerHealthRoutes()
	s.registerPresetRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// StatusResponse is the liveness payload.
type StatusResponse struct {
	Body StatusData
}

// StatusData reports API liveness and registry size.
type StatusData struct {
	Status  string `json:"status" example:"ok" doc:"API status"`
	Streams int    `json:"streams" example:"2" doc:"Number of registered streams"`
}

// VersionResponse carries build metadata.
type VersionResponse struct {
	Body version.Info
}
