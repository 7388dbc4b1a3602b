package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/preferences"
)

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errStr, message string) {
	writeJSON(w, status, apiError{Error: errStr, Message: message, Code: status})
}

// classify maps an error to its HTTP status and envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, dispatch.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, preferences.ErrAnonymous):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, dispatch.ErrProvider), errors.Is(err, dispatch.ErrBadToolCall):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
