package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cueplex/cueplex/internal/scte35"
)

// CueRequest is the ad-marker injection payload.
type CueRequest struct {
	Type     scte35.EventType `json:"type" enum:"CUE-OUT,CUE-IN" doc:"Marker type"`
	Duration float64          `json:"duration,omitempty" example:"30" doc:"Ad break duration in seconds, required for CUE-OUT"`
	PreRoll  float64          `json:"pre_roll,omitempty" example:"2" doc:"Lead time in seconds before the break starts"`
}

// CueResponse wraps one marker event.
type CueResponse struct {
	Body scte35.Event
}

// CueListResponse wraps a marker event listing.
type CueListResponse struct {
	Body CueListData
}

// CueListData is the marker listing payload.
type CueListData struct {
	Events []*scte35.Event `json:"events" doc:"Marker events"`
	Count  int             `json:"count" example:"1" doc:"Number of events"`
}

func (s *Server) registerCueRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "inject-cue",
		Method:      http.MethodPost,
		Path:        "/api/streams/{name}/cues",
		Summary:     "Inject Ad Marker",
		Description: "Inject a SCTE-35 marker into an active stream. A CUE-OUT schedules an automatic CUE-IN after the break duration elapses.",
		Tags:        []string{"cues"},
		Errors:      []int{404, 409, 422, 500},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
		Body CueRequest
	}) (*CueResponse, error) {
		ev, err := s.orch.InjectSCTE35(input.Name, input.Body.Type, input.Body.Duration, input.Body.PreRoll)
		if err != nil {
			return nil, mapError(err)
		}
		return &CueResponse{Body: *ev}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-active-cues",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}/cues",
		Summary:     "List Active Markers",
		Description: "Get markers currently awaiting their automatic return",
		Tags:        []string{"cues"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"channel1" doc:"Stream name"`
	}) (*CueListResponse, error) {
		if _, err := s.orch.GetStream(input.Name); err != nil {
			return nil, mapError(err)
		}
		evs := s.injector.ActiveEvents(input.Name)
		return &CueListResponse{Body: CueListData{Events: evs, Count: len(evs)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-cue-history",
		Method:      http.MethodGet,
		Path:        "/api/streams/{name}/cues/history",
		Summary:     "Marker History",
		Description: "Get past marker events for a stream, newest first",
		Tags:        []string{"cues"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name  string `path:"name" example:"channel1" doc:"Stream name"`
		Limit int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum events to return"`
	}) (*CueListResponse, error) {
		if _, err := s.orch.GetStream(input.Name); err != nil {
			return nil, mapError(err)
		}
		evs := s.injector.History(input.Name, input.Limit)
		return &CueListResponse{Body: CueListData{Events: evs, Count: len(evs)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-cue",
		Method:      http.MethodGet,
		Path:        "/api/cues/{event_id}",
		Summary:     "Get Marker",
		Description: "Get one marker event by identifier",
		Tags:        []string{"cues"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id" example:"evt-100023" doc:"Marker event identifier"`
	}) (*CueResponse, error) {
		ev, err := s.injector.GetEvent(input.EventID)
		if err != nil {
			return nil, mapError(err)
		}
		return &CueResponse{Body: *ev}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-cue",
		Method:      http.MethodDelete,
		Path:        "/api/cues/{event_id}",
		Summary:     "Cancel Marker",
		Description: "Cancel a pending or active marker, suppressing its automatic return",
		Tags:        []string{"cues"},
		Errors:      []int{404, 409},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id" example:"evt-100023" doc:"Marker event identifier"`
	}) (*struct{}, error) {
		if err := s.injector.Cancel(input.EventID); err != nil {
			return nil, mapError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "complete-cue",
		Method:      http.MethodPost,
		Path:        "/api/cues/{event_id}/complete",
		Summary:     "Complete Marker Early",
		Description: "End an active ad break now, dispatching the return marker immediately",
		Tags:        []string{"cues"},
		Errors:      []int{404, 409, 500},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id" example:"evt-100023" doc:"Marker event identifier"`
	}) (*struct{}, error) {
		if err := s.injector.ForceComplete(input.EventID); err != nil {
			return nil, mapError(err)
		}
		return &struct{}{}, nil
	})
}
