package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagship/handler"
	"github.com/dmitrymomot/flagship/pkg/binder"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/validator"
)

type mockResponse struct {
	statusCode int
	body       string
	renderErr  error
}

func (m mockResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if m.renderErr != nil {
		return m.renderErr
	}
	w.WriteHeader(m.statusCode)
	_, err := w.Write([]byte(m.body))
	return err
}

type envelope struct {
	Error struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWrap(t *testing.T) {
	t.Parallel()

	type createRequest struct {
		Name string `json:"name"`
	}

	t.Run("binds and renders", func(t *testing.T) {
		t.Parallel()
		h := handler.HandlerFunc[handler.Context, createRequest](func(ctx handler.Context, req createRequest) handler.Response {
			assert.NotNil(t, ctx.Request())
			return handler.JSON(map[string]string{"hello": req.Name}, handler.WithJSONStatus(http.StatusCreated))
		})
		wrapped := handler.Wrap(h, handler.WithBinders[handler.Context, createRequest](binder.JSON()))

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bob"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		wrapped(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"hello":"bob"}`, rec.Body.String())
	})

	t.Run("binder failure is a 400 envelope", func(t *testing.T) {
		t.Parallel()
		called := false
		h := handler.HandlerFunc[handler.Context, createRequest](func(handler.Context, createRequest) handler.Response {
			called = true
			return handler.JSON(nil)
		})
		wrapped := handler.Wrap(h, handler.WithBinders[handler.Context, createRequest](binder.JSON()))

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		wrapped(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeEnvelope(t, rec).Error.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		wrapped := handler.Wrap(handler.HandlerFunc[handler.Context, createRequest](func(handler.Context, createRequest) handler.Response {
			return nil
		}))
		rec := httptest.NewRecorder()
		wrapped(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal_error", decodeEnvelope(t, rec).Error.Code)
	})

	t.Run("custom error handler sees render errors", func(t *testing.T) {
		t.Parallel()
		var got error
		renderErr := errors.New("render failed")
		wrapped := handler.Wrap(
			handler.HandlerFunc[handler.Context, createRequest](func(handler.Context, createRequest) handler.Response {
				return mockResponse{renderErr: renderErr}
			}),
			handler.WithErrorHandler[handler.Context, createRequest](func(ctx handler.Context, err error) {
				got = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)
		rec := httptest.NewRecorder()
		wrapped(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.ErrorIs(t, got, renderErr)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("error response goes through the error handler", func(t *testing.T) {
		t.Parallel()
		wrapped := handler.Wrap(handler.HandlerFunc[handler.Context, createRequest](func(handler.Context, createRequest) handler.Response {
			return handler.Error(handler.ErrNotFound.WithMessage("dead letter not found"))
		}))
		rec := httptest.NewRecorder()
		wrapped(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "not_found", env.Error.Code)
		assert.Equal(t, "dead letter not found", env.Error.Message)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, createRequest] {
			return func(next handler.HandlerFunc[handler.Context, createRequest]) handler.HandlerFunc[handler.Context, createRequest] {
				return func(ctx handler.Context, req createRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		wrapped := handler.Wrap(
			handler.HandlerFunc[handler.Context, createRequest](func(handler.Context, createRequest) handler.Response {
				order = append(order, "handler")
				return mockResponse{statusCode: http.StatusOK}
			}),
			handler.WithDecorators(mark("outer"), mark("inner")),
		)
		wrapped(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	})
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	verr := validator.Apply(validator.RequiredString("events[0].metric", ""))
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errors.Join(errors.New("invalid usage batch"), verr), http.StatusBadRequest, "validation_error"},
		{"http error", handler.ErrNotFound, http.StatusNotFound, "not_found"},
		{"custom http error", handler.NewHTTPError(http.StatusConflict, "conflict"), http.StatusConflict, "conflict"},
		{"too large", binder.ErrRequestTooLarge, http.StatusRequestEntityTooLarge, "request_entity_too_large"},
		{"media type", binder.ErrMissingContentType, http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{"query", binder.ErrFailedToParseQuery, http.StatusBadRequest, "invalid_request"},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, detail := handler.ErrorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, detail.Code)
			assert.NotEmpty(t, detail.Message)
		})
	}

	t.Run("internal causes stay private", func(t *testing.T) {
		t.Parallel()
		_, detail := handler.ErrorStatus(errors.New("password=secret"))
		assert.NotContains(t, detail.Message, "secret")
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
	h := handler.NewErrorHandler(log)

	verr := validator.Apply(validator.RequiredString("metric", ""))
	rec := httptest.NewRecorder()
	h(handler.NewContext(rec, httptest.NewRequest(http.MethodPost, "/v1/usage/ingest", nil)), verr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Equal(t, []string{"field is required"}, env.Error.Details["metric"])

	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"path":"/v1/usage/ingest"`)
	assert.Contains(t, buf.String(), `"status_code":400`)

	buf.Reset()
	rec = httptest.NewRecorder()
	h(handler.NewContext(rec, httptest.NewRequest(http.MethodGet, "/", nil)), handler.ErrServiceUnavailable.WithMessage("redis down"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "redis down", decodeEnvelope(t, rec).Error.Message)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}
