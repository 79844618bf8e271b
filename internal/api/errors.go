package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cueplex/cueplex/internal/orchestrator"
	"github.com/cueplex/cueplex/internal/scte35"
)

// mapError translates orchestration errors into HTTP status errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch orchestrator.CodeOf(err) {
	case orchestrator.CodeStreamNotFound, orchestrator.CodeEventNotFound:
		return huma.NewError(http.StatusNotFound, err.Error())
	case orchestrator.CodeStreamExists:
		return huma.NewError(http.StatusConflict, err.Error())
	case orchestrator.CodeStreamBusy:
		return huma.NewError(http.StatusConflict, err.Error())
	case orchestrator.CodeInvalidParams:
		return huma.NewError(http.StatusUnprocessableEntity, err.Error())
	case orchestrator.CodeStreamNotActive, orchestrator.CodeSCTE35Disabled:
		return huma.NewError(http.StatusConflict, err.Error())
	case orchestrator.CodeSpawnFailed, orchestrator.CodeManifestError:
		return huma.NewError(http.StatusInternalServerError, err.Error())
	}
	if errors.Is(err, scte35.ErrEventNotFound) {
		return huma.NewError(http.StatusNotFound, err.Error())
	}
	return huma.NewError(http.StatusInternalServerError, err.Error())
}
