package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/italolelis/aria2_downloader/internal/dc"
	"github.com/italolelis/aria2_downloader/internal/download"
	"github.com/italolelis/aria2_downloader/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	got download.DownloadRequest
	fn  func(ctx context.Context, req download.DownloadRequest) (download.Result, error)
}

func (f *fakeSubmitter) Submit(ctx context.Context, req download.DownloadRequest) (download.Result, error) {
	f.got = req

	return f.fn(ctx, req)
}

type fakeDownloads struct {
	records []storage.DownloadRecord
	err     error
}

func (f *fakeDownloads) GetDownloads(context.Context) ([]storage.DownloadRecord, error) {
	return f.records, f.err
}

func (f *fakeDownloads) GetDownload(_ context.Context, id string) (*storage.DownloadRecord, error) {
	if f.err != nil {
		return nil, f.err
	}

	for _, rec := range f.records {
		if rec.ID == id {
			return &rec, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (f *fakeDownloads) GetDownloadsByStatus(context.Context, string) ([]storage.DownloadRecord, error) {
	return f.records, f.err
}

type fakeSettings struct {
	settings storage.Settings
}

func (f *fakeSettings) Current(context.Context) (storage.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettings) Update(_ context.Context, s storage.Settings) error {
	f.settings = s

	return nil
}

func accepted(ctx context.Context, req download.DownloadRequest) (download.Result, error) {
	rec := &storage.DownloadRecord{
		ID:             "id-1",
		GID:            "gid123",
		URL:            req.URL,
		Name:           "file.zip",
		DownloadStatus: storage.StatusDownloading,
		Fields:         map[string]any{"totalLength": 1000},
	}

	download.NavigatorFromContext(ctx).Navigate(ctx, download.DetailsPath(rec.ID))

	return download.Result{Accepted: true, Record: rec}, nil
}

func newTestHandler(sub *fakeSubmitter) (*DownloadsHandler, *fakeDownloads, *fakeSettings) {
	downloads := &fakeDownloads{}
	settings := &fakeSettings{settings: storage.Settings{DownloadDir: "/downloads"}}

	return NewDownloadsHandler("", "", sub, downloads, settings), downloads, settings
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

func TestHandleSubmit_Accepted(t *testing.T) {
	sub := &fakeSubmitter{fn: accepted}
	h, _, _ := newTestHandler(sub)

	rec := do(t, h.Routes(), http.MethodPost, "/downloads", `{"url":"http://example.com/file.zip","category":"iso"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/download/id-1", rec.Header().Get("Location"))
	assert.Equal(t, "http://example.com/file.zip", sub.got.URL)
	assert.Equal(t, map[string]any{"category": "iso"}, sub.got.Extra)

	body := decode(t, rec)
	assert.Equal(t, "gid123", body["gid"])
	assert.Equal(t, "file.zip", body["name"])
	assert.Equal(t, "downloading", body["downloadStatus"])
	assert.EqualValues(t, 1000, body["totalLength"])
}

func TestHandleSubmit_Rejected(t *testing.T) {
	sub := &fakeSubmitter{fn: func(context.Context, download.DownloadRequest) (download.Result, error) {
		return download.Result{}, nil
	}}
	h, _, _ := newTestHandler(sub)

	rec := do(t, h.Routes(), http.MethodPost, "/downloads", `{"url":"bogus"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Equal(t, "Bad URL", decode(t, rec)["error"])
}

func TestHandleSubmit_BadRequest(t *testing.T) {
	sub := &fakeSubmitter{fn: accepted}
	h, _, _ := newTestHandler(sub)

	for _, body := range []string{`not json`, `{}`, `{"url": ""}`, `{"url": 42}`} {
		rec := do(t, h.Routes(), http.MethodPost, "/downloads", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestHandleSubmit_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"daemon unreachable", &dc.NetworkError{Operation: "aria2.addUri", Err: errors.New("refused")}, http.StatusBadGateway},
		{"bad secret", &dc.AuthenticationError{Operation: "aria2.addUri"}, http.StatusBadGateway},
		{"no files", download.ErrNoFiles, http.StatusBadGateway},
		{"storage", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{fn: func(context.Context, download.DownloadRequest) (download.Result, error) {
				return download.Result{}, tt.err
			}}
			h, _, _ := newTestHandler(sub)

			rec := do(t, h.Routes(), http.MethodPost, "/downloads", `{"url":"http://a"}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestHandleListAndGet(t *testing.T) {
	h, downloads, _ := newTestHandler(&fakeSubmitter{fn: accepted})
	downloads.records = []storage.DownloadRecord{
		{ID: "a", GID: "g1", Name: "a.zip", DownloadStatus: storage.StatusDownloading},
		{ID: "b", GID: "g2", Name: "b.zip", DownloadStatus: storage.StatusComplete},
	}

	rec := do(t, h.Routes(), http.MethodGet, "/downloads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0]["id"])

	rec = do(t, h.Routes(), http.MethodGet, "/download/b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "complete", decode(t, rec)["downloadStatus"])

	rec = do(t, h.Routes(), http.MethodGet, "/download/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	downloads.err = errors.New("db closed")
	rec = do(t, h.Routes(), http.MethodGet, "/downloads", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleSettings(t *testing.T) {
	h, _, settings := newTestHandler(&fakeSubmitter{fn: accepted})

	rec := do(t, h.Routes(), http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/downloads", decode(t, rec)["downloaddir"])

	rec = do(t, h.Routes(), http.MethodPut, "/settings", `{"downloaddir":"/srv"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/srv", settings.settings.DownloadDir)

	rec = do(t, h.Routes(), http.MethodPut, "/settings", `{"downloaddir":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	h := NewDownloadsHandler("admin", "pw", &fakeSubmitter{fn: accepted}, &fakeDownloads{}, &fakeSettings{})
	routes := h.Routes()

	rec := do(t, routes, http.MethodGet, "/downloads", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/downloads", nil)
	req.SetBasicAuth("admin", "wrong")
	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/downloads", nil)
	req.SetBasicAuth("admin", "pw")
	rr = httptest.NewRecorder()
	routes.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
