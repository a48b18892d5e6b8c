package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusCreated, "2xx"},
		{http.StatusFound, "3xx"},
		{http.StatusUnprocessableEntity, "4xx"},
		{http.StatusBadGateway, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getStatusClass(tt.code), "code %d", tt.code)
	}
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logctx.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/downloads", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/downloads", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
}

func TestHTTPLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "INFO"},
		{http.StatusUnprocessableEntity, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

			h := HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodPost, "/downloads", nil)
			req = req.WithContext(logctx.WithLogger(context.Background(), logger))

			h.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, "/downloads", entry["path"])
		})
	}
}

func TestHTTPMiddleware_DisabledTelemetryPassesThrough(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware)
	r.Get("/download/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusRecorder_IgnoresSecondWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := newStatusRecorder(rec)

	sr.WriteHeader(http.StatusAccepted)
	sr.WriteHeader(http.StatusInternalServerError)

	n, err := sr.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, http.StatusAccepted, sr.status)
	assert.Equal(t, int64(2), sr.bytesWritten)
}

func TestDisabledTelemetry_InstrumentSubmission(t *testing.T) {
	var tel *Telemetry

	accepted, err := tel.InstrumentSubmission(context.Background(), func(ctx context.Context) (bool, error) {
		return true, nil
	})

	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, http.StatusNotFound, func() int {
		rec := httptest.NewRecorder()
		tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		return rec.Code
	}())
}

func TestInstanceID(t *testing.T) {
	a, b := InstanceID(), InstanceID()

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "-")
}

func TestNewResource(t *testing.T) {
	res := newResource(Config{ServiceName: "svc", ServiceVersion: "1.2.3"})

	values := map[string]string{}
	for _, kv := range res.Attributes() {
		values[string(kv.Key)] = kv.Value.AsString()
	}

	assert.Equal(t, "svc", values["service.name"])
	assert.Equal(t, "1.2.3", values["service.version"])
	assert.NotEmpty(t, values["service.instance.id"])
}
