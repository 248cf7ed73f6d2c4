package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/aiprof/internal/analysis"
	"github.com/MrWong99/aiprof/internal/kv"
	lec "github.com/MrWong99/aiprof/internal/lecture"
	"github.com/MrWong99/aiprof/internal/locale"
	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	// Error is the plain-language message shown to the user.
	Error string `json:"error"`

	// Detail is the underlying error text.
	Detail string `json:"detail,omitempty"`

	// Retryable is set when the same request may succeed later.
	Retryable bool `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError maps err onto a status code and writes an [errorBody].
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: lecture.UserMessage(err), Detail: err.Error()}

	var ese *lecture.ExternalServiceError
	if errors.As(err, &ese) {
		body.Retryable = ese.Retryable()
	}
	switch status {
	case http.StatusBadRequest:
		body.Error = err.Error()
	case http.StatusNotFound:
		body.Error = "Session not found."
	case http.StatusServiceUnavailable:
		body.Error = "This feature is not available right now."
	}

	log := observe.Logger(r.Context())
	if status >= 500 {
		log.Error("request failed", "status", status, "err", err)
	} else {
		log.Debug("request rejected", "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lecture.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, lecture.ErrDeviceAccess):
		return http.StatusForbidden
	case errors.Is(err, locale.ErrUnknownLanguage),
		errors.Is(err, locale.ErrUnknownDialect),
		errors.Is(err, analysis.ErrEmptyContent),
		errors.Is(err, analysis.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lecture.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, lec.ErrClosed), errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest  = errors.New("web: bad request")
	errUnavailable = errors.New("web: service unavailable")
)
