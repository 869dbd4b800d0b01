package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourney/internal/logging"
	"github.com/copyleftdev/tourney/internal/optimization"
)

func TestErrorString(t *testing.T) {
	err := New("solve failed").WithOperation("solve").WithComponent("server")
	assert.Equal(t, "solve failed: operation=solve, component=server", err.Error())

	wrapped := Wrap(ErrNotFound, "job j1")
	assert.Equal(t, "job j1: not found", wrapped.Error())
	assert.True(t, Is(wrapped, ErrNotFound))
	assert.NotEmpty(t, wrapped.StackTrace())
}

func TestWrapKeepsInnerStack(t *testing.T) {
	inner := New("inner")
	outer := Wrapf(fmt.Errorf("context: %w", inner), "outer %d", 1)

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.Equal(t, "inner", inner.Message)
	assert.Nil(t, Wrap(nil, "nothing"))

	var target *Error
	require.True(t, As(outer, &target))
	assert.Equal(t, "outer 1", target.Message)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", Wrap(ErrNotFound, "job"), http.StatusNotFound},
		{"bad request", ErrBadRequest, http.StatusBadRequest},
		{"invalid problem", optimization.NewError(optimization.KindInvalidProblem, "not square"), http.StatusBadRequest},
		{"conflict", ErrConflict, http.StatusConflict},
		{"infeasible", optimization.NewError(optimization.KindInfeasible, "no placement"), http.StatusUnprocessableEntity},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestRespond(t *testing.T) {
	var buf bytes.Buffer
	ctx := (&logging.CtxLogger{Logger: logging.New(logging.InfoLevel, &buf)}).WithContext(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	Respond(rec, req, Wrap(ErrConflict, "job already finished"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job already finished: conflict", body["error"])
	assert.Empty(t, buf.String())

	rec = httptest.NewRecorder()
	Respond(rec, req, New("broken"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "request failed")
	assert.Contains(t, buf.String(), "stack")
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoveryMiddleware(logging.New(logging.InfoLevel, &buf))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/solve", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "recovered from panic")
	assert.Contains(t, buf.String(), "/api/v1/solve")

	aborting := RecoveryMiddleware(logging.New(logging.InfoLevel, &buf))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }),
	)
	assert.Panics(t, func() {
		aborting.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
