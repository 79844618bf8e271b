package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cueplex/cueplex/internal/health"
)

// SystemHealthResponse wraps the fleet-wide aggregate.
type SystemHealthResponse struct {
	Body health.SystemHealth
}

// StreamHealthResponse wraps one stream's health record.
type StreamHealthResponse struct {
	Body health.StreamHealth
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-system-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "System Health",
		Description: "Aggregate health across every watched stream",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*SystemHealthResponse, error) {
		return &SystemHealthResponse{Body: s.monitor.GetSystemHealth()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream-health",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}/health",
		Summary:     "Stream Health",
		Description: "Current health record of one watched stream, including unresolved issues",
		Tags:        []string{"health"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*StreamHealthResponse, error) {
		if _, err := s.orch.GetStream(input.Name); err != nil {
			return nil, mapError(err)
		}
		h, err := s.monitor.GetStreamHealth(input.Name)
		if err != nil {
			return nil, huma.NewError(http.StatusNotFound, err.Error())
		}
		return &StreamHealthResponse{Body: *h}, nil
	})
}
