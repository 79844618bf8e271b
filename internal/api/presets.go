package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cueplex/cueplex/internal/presets"
)

// PresetResponse wraps one saved stream configuration.
type PresetResponse struct {
	Body presets.Preset
}

// PresetListResponse wraps the preset listing.
type PresetListResponse struct {
	Body PresetListData
}

// PresetListData is the preset listing payload.
type PresetListData struct {
	Presets []presets.Preset `json:"presets" doc:"Saved stream configurations"`
	Count   int              `json:"count" doc:"Number of presets"`
}

func (s *Server) registerPresetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "List Presets",
		Description: "Get every saved stream configuration",
		Tags:        []string{"presets"},
	}, func(ctx context.Context, input *struct{}) (*PresetListResponse, error) {
		all := s.presets.All()
		list := make([]presets.Preset, 0, len(all))
		for _, p := range all {
			list = append(list, p)
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].Stream.Name < list[j].Stream.Name
		})
		return &PresetListResponse{Body: PresetListData{Presets: list, Count: len(list)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-preset",
		Method:      http.MethodPut,
		Path:        "/api/presets",
		Summary:     "Save Preset",
		Description: "Store or replace a stream configuration, keyed by stream name",
		Tags:        []string{"presets"},
		Errors:      []int{422, 500},
	}, func(ctx context.Context, input *struct {
		Body presets.Preset
	}) (*PresetResponse, error) {
		if err := s.presets.Save(input.Body); err != nil {
			return nil, mapError(err)
		}
		saved, _ := s.presets.Get(input.Body.Stream.Name)
		return &PresetResponse{Body: saved}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preset",
		Method:      http.MethodGet,
		Path:        "/api/presets/{name}",
		Summary:     "Get Preset",
		Description: "Get one saved stream configuration",
		Tags:        []string{"presets"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*PresetResponse, error) {
		p, ok := s.presets.Get(input.Name)
		if !ok {
			return nil, huma.NewError(http.StatusNotFound, "preset "+input.Name+" not found")
		}
		return &PresetResponse{Body: p}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-preset",
		Method:      http.MethodDelete,
		Path:        "/api/presets/{name}",
		Summary:     "Delete Preset",
		Description: "Remove a saved stream configuration",
		Tags:        []string{"presets"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*struct{}, error) {
		if err := s.presets.Remove(input.Name); err != nil {
			return nil, huma.NewError(http.StatusNotFound, err.Error())
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "launch-preset",
		Method:      http.MethodPost,
		Path:        "/api/presets/{name}/start",
		Summary:     "Start Preset",
		Description: "Start a stream from a saved configuration",
		Tags:        []string{"presets"},
		Errors:      []int{404, 409, 422, 500},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*StreamResponse, error) {
		p, ok := s.presets.Get(input.Name)
		if !ok {
			return nil, huma.NewError(http.StatusNotFound, "preset "+input.Name+" not found")
		}
		stream, err := s.orch.StartStream(p.Stream)
		if err != nil {
			return nil, mapError(err)
		}
		return &StreamResponse{Body: *stream}, nil
	})
}
