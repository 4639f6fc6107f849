package middleware_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/tagwatch/tagwatch/internal/api/middleware"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("readings"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/devices/tag-1/readings", http.NoBody)
	req.Header.Set("User-Agent", "ops-console")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/devices/tag-1/readings", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(8), entry["bytes"])
	assert.Equal(t, "ops-console", entry["user_agent"])
	assert.Equal(t, false, entry["upgraded"])
}

func TestLogger_ServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/devices/tag-1/commands", http.NoBody))

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, float64(503), entry["status"])
}

func TestLogger_IncludesRequestAndTraceIDs(t *testing.T) {
	setupTestTracer(t)
	var buf bytes.Buffer

	handler := middleware.RequestID(middleware.Tracing("tagwatch")(
		middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	entry := decodeLogLine(t, &buf)
	assert.Contains(t, entry["request_id"], "req_")
	assert.Len(t, entry["trace_id"], 32)
	assert.Len(t, entry["span_id"], 16)
}

func TestTracing_CreatesServerSpan(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.RequestID(middleware.Tracing("tagwatch")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusNotFound)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/devices/x/alerts", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/devices/x/alerts", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())

	status, ok := spanAttr(spans[0], "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(404), status.AsInt64())

	reqID, ok := spanAttr(spans[0], "request.id")
	require.True(t, ok)
	assert.Contains(t, reqID.AsString(), "req_")

	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestTracing_ContinuesPropagatedTrace(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.Tracing("tagwatch")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())
}

func TestTracing_MarksServerErrors(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.Tracing("tagwatch")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "Internal Server Error", spans[0].Status().Description)
}

func TestTracing_UsesRouteTemplate(t *testing.T) {
	sr := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("tagwatch"))
	r.Get("/v1/devices/{deviceId}/readings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/devices/tag-42/readings", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	route, ok := spanAttr(spans[0], "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/devices/{deviceId}/readings", route.AsString())
}

func TestMetrics_Middleware(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("body"))
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

		assert.Equal(t, status, rec.Code)
		assert.Equal(t, "body", rec.Body.String())
	}
}

// hijackRecorder is an httptest.ResponseRecorder that supports Hijack.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	server, client := net.Pipe()
	_ = client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestInstrumentation_ForwardsHijack(t *testing.T) {
	setupTestTracer(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	var buf bytes.Buffer
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	})

	handler := middleware.Tracing("tagwatch")(metrics.Middleware()(middleware.Logger(zerolog.New(&buf))(inner)))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ws", http.NoBody))

	assert.True(t, rec.hijacked)
	entry := decodeLogLine(t, &buf)
	assert.Equal(t, true, entry["upgraded"])
	assert.Equal(t, float64(http.StatusSwitchingProtocols), entry["status"])
}

func TestInstrumentation_HijackUnsupported(t *testing.T) {
	var hijackErr error
	handler := middleware.Logger(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _, hijackErr = w.(http.Hijacker).Hijack()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/ws", http.NoBody))
	assert.Error(t, hijackErr)
}
