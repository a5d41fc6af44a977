package control

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/services/scheduler"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, endpoint.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, endpoint.ErrInvalidConfig), errors.Is(err, endpoint.ErrImmutableField):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrManualMuteDisabled):
		return http.StatusForbidden
	case errors.Is(err, scheduler.ErrNoHistory):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
