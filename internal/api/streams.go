package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cueplex/cueplex/internal/metrics"
	"github.com/cueplex/cueplex/internal/orchestrator"
)

// StreamResponse wraps a single stream.
type StreamResponse struct {
	Body orchestrator.Stream
}

// StreamListResponse wraps the stream registry listing.
type StreamListResponse struct {
	Body StreamListData
}

// StreamListData is the registry listing payload.
type StreamListData struct {
	Streams []*orchestrator.Stream `json:"streams" doc:"Registered streams"`
	Count   int                    `json:"count" example:"2" doc:"Number of streams"`
}

// ManifestResponse carries a raw manifest artifact.
type ManifestResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// ValidationResponse reports manifest structural defects per format.
type ValidationResponse struct {
	Body ValidationData
}

// ValidationData maps format name to defect list; empty lists mean the
// artifact passed.
type ValidationData struct {
	Valid   bool                `json:"valid" doc:"True when no format reported defects"`
	Defects map[string][]string `json:"defects" doc:"Structural defects per format"`
}

// StreamMetricsResponse carries the last scraped encoder metrics.
type StreamMetricsResponse struct {
	Body metrics.StreamMetrics
}

// CleanupResponse reports how many segment files were removed.
type CleanupResponse struct {
	Body CleanupData
}

// CleanupData is the segment cleanup payload.
type CleanupData struct {
	Removed int `json:"removed" example:"12" doc:"Number of segment files deleted"`
}

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "Get all registered streams",
		Tags:        []string{"streams"},
		Errors:      []int{500},
	}, func(ctx context.Context, input *struct{}) (*StreamListResponse, error) {
		streams := s.orch.GetAllStreams()
		return &StreamListResponse{
			Body: StreamListData{Streams: streams, Count: len(streams)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "create-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams",
		Summary:     "Create Stream",
		Description: "Validate the configuration, spawn encoder pipelines and register the stream",
		Tags:        []string{"streams"},
		Errors:      []int{409, 422, 500},
	}, func(ctx context.Context, input *struct {
		Body orchestrator.StreamConfig
	}) (*StreamResponse, error) {
		stream, err := s.orch.StartStream(input.Body)
		if err != nil {
			return nil, mapError(err)
		}
		return &StreamResponse{Body: *stream}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}",
		Summary:     "Get Stream",
		Description: "Get details of a specific stream",
		Tags:        []string{"streams"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*StreamResponse, error) {
		stream, err := s.orch.GetStream(input.Name)
		if err != nil {
			return nil, mapError(err)
		}
		return &StreamResponse{Body: *stream}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-stream",
		Method:      http.MethodDelete,
		Path:        "/api/streams/{name}",
		Summary:     "Stop Stream",
		Description: "Gracefully stop a stream's pipelines, finalize its manifests and remove it",
		Tags:        []string{"streams"},
		Errors:      []int{404, 409, 500},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*struct{}, error) {
		if err := s.orch.StopStream(input.Name); err != nil {
			return nil, mapError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream-metrics",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}/metrics",
		Summary:     "Stream Metrics",
		Description: "Get the last encoder metrics scraped for a stream",
		Tags:        []string{"streams"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*StreamMetricsResponse, error) {
		if _, err := s.orch.GetStream(input.Name); err != nil {
			return nil, mapError(err)
		}
		resp := &StreamMetricsResponse{}
		if m := metrics.GetStreamMetrics(input.Name); m != nil {
			resp.Body = *m
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-manifest",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}/manifest/{format}",
		Summary:     "Get Manifest",
		Description: "Get the current manifest artifact for one output format",
		Tags:        []string{"manifests"},
		Errors:      []int{404, 422, 500},
	}, func(ctx context.Context, input *struct {
		Name   string `path:"name" example:"channel1" doc:"Stream name"`
		Format string `path:"format" enum:"hls,dash" doc:"Output format"`
	}) (*ManifestResponse, error) {
		content, err := s.orch.GetManifestContent(input.Name, input.Format)
		if err != nil {
			return nil, mapError(err)
		}
		contentType := "application/vnd.apple.mpegurl"
		if input.Format == orchestrator.FormatDASH {
			contentType = "application/dash+xml"
		}
		return &ManifestResponse{ContentType: contentType, Body: []byte(content)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "validate-manifests",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}/manifest/validate",
		Summary:     "Validate Manifests",
		Description: "Run structural validation on every enabled manifest format",
		Tags:        []string{"manifests"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*ValidationResponse, error) {
		defects, err := s.orch.ValidateManifests(input.Name)
		if err != nil {
			return nil, mapError(err)
		}
		valid := true
		for _, list := range defects {
			if len(list) > 0 {
				valid = false
			}
		}
		return &ValidationResponse{Body: ValidationData{Valid: valid, Defects: defects}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "cleanup-segments",
		Method:      http.MethodPost,
		Path:        "/api/streams/{name}/cleanup",
		Summary:     "Cleanup Segments",
		Description: "Delete segment files older than the given age",
		Tags:        []string{"manifests"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
		Body struct {
			MaxAgeSeconds int `json:"max_age_seconds" minimum:"1" example:"300" doc:"Delete segments older than this"`
		}
	}) (*CleanupResponse, error) {
		removed, err := s.orch.CleanupOldSegments(input.Name,
			time.Duration(input.Body.MaxAgeSeconds)*time.Second)
		if err != nil {
			return nil, mapError(err)
		}
		return &CleanupResponse{Body: CleanupData{Removed: removed}}, nil
	})
}
