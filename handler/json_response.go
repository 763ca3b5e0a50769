package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/flagship/pkg/binder"
	"github.com/dmitrymomot/flagship/pkg/validator"
)

// ErrorDetail is the body of the error envelope {"error": {...}}.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

// WithJSONStatus sets custom HTTP status code
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// JSON renders v as the response body with status 200 unless overridden.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: v}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError renders err as the error envelope with the status ErrorStatus
// derives from it.
func JSONError(err error, opts ...JSONOption) Response {
	status, detail := ErrorStatus(err)
	r := &jsonResponse{status: status, body: errorEnvelope{Error: detail}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrorStatus classifies err into a status code and envelope detail.
// Validation failures win over any HTTPError in the chain; unknown errors
// become an opaque 500.
func ErrorStatus(err error) (int, ErrorDetail) {
	if verrs := validator.ExtractValidationErrors(err); len(verrs) > 0 {
		details := make(map[string][]string, len(verrs))
		for _, f := range verrs.Fields() {
			details[f] = verrs.Get(f)
		}
		return http.StatusBadRequest, ErrorDetail{
			Code:    "validation_error",
			Message: "request validation failed",
			Details: details,
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, ErrorDetail{Code: httpErr.Key, Message: msg, Details: httpErr.Details}
	}

	switch {
	case errors.Is(err, binder.ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorDetail{Code: ErrRequestEntityTooLarge.Key, Message: err.Error()}
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return http.StatusUnsupportedMediaType, ErrorDetail{Code: ErrUnsupportedMediaType.Key, Message: err.Error()}
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath):
		return http.StatusBadRequest, ErrorDetail{Code: "invalid_request", Message: err.Error()}
	}

	return http.StatusInternalServerError, ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}
