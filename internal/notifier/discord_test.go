package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	err := NewDiscordNotifier(ts.URL).Notify(context.Background(), "Bad URL")
	require.NoError(t, err)
	assert.Equal(t, "Bad URL", got["content"])
}

func TestDiscordNotifier_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	err := NewDiscordNotifier(ts.URL).Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	err = (&DiscordNotifier{}).Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook URL is not set")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer

	ctx := logctx.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, LogNotifier{Level: slog.LevelWarn}.Notify(ctx, "Bad URL"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "Bad URL", entry["content"])
}
