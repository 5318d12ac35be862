package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/hada/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	// Caller-supplied IDs are kept unless absurdly long.
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc", seen)

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 36)
}

func TestTracingMiddlewareContinuesInboundTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var got trace.TraceID
	handler := tracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = trace.SpanContextFromContext(r.Context()).TraceID()
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := requestIDMiddleware(recoveryMiddleware(quietLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/analyze", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ErrCodeInternalError, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "boom")
	assert.NotEmpty(t, body.Meta.RequestID)
}

func TestRecoveryMiddlewareRethrowsAbort(t *testing.T) {
	handler := recoveryMiddleware(quietLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}

func TestStatusWriterRecordsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := w.Write([]byte("ok"))
	require.NoError(t, err)
	w.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, w.statusCode, "status is fixed once the body starts")

	w2 := &statusWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	w2.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, w2.statusCode)
	assert.Same(t, rec, w.Unwrap())
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		buf.Reset()
		handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
		want := map[int]string{200: "INFO", 400: "WARN", 500: "ERROR"}[status]
		assert.Equal(t, want, entry["level"])
		assert.Equal(t, float64(status), entry["status"])
		assert.Equal(t, "/health", entry["path"])
	}
}

func TestDecodeJSON(t *testing.T) {
	type target struct {
		Name string `json:"name"`
	}

	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"trailing whitespace", "{\"name\":\"x\"}\n  ", false},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"two objects", `{"name":"x"}{"name":"y"}`, true},
		{"empty", ``, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v target
			r := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			err := decodeJSON(httptest.NewRecorder(), r, &v, 1024)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "x", v.Name)
			}
		})
	}
}

func TestHandleDecodeError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{io.EOF, http.StatusBadRequest},
		{errors.New("unexpected token"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleDecodeError(rec, httptest.NewRequest("POST", "/", nil), tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body model.APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, model.ErrCodeInvalidInput, body.Error.Code)
	}
}
