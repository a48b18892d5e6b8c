package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/aria2_downloader/internal/dc"
	"github.com/italolelis/aria2_downloader/internal/download"
	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/italolelis/aria2_downloader/internal/storage"
)

const maxBodySize = 1 << 20

// Submitter runs the download submission workflow.
type Submitter interface {
	Submit(ctx context.Context, req download.DownloadRequest) (download.Result, error)
}

type DownloadsHandler struct {
	username  string
	password  string
	submitter Submitter
	downloads storage.DownloadReadRepository
	settings  storage.SettingsRepository
}

// NewDownloadsHandler creates the API handler. Basic auth is enforced only when
// username is not empty.
func NewDownloadsHandler(
	username, password string,
	submitter Submitter,
	downloads storage.DownloadReadRepository,
	settings storage.SettingsRepository,
) *DownloadsHandler {
	return &DownloadsHandler{
		username:  username,
		password:  password,
		submitter: submitter,
		downloads: downloads,
		settings:  settings,
	}
}

func (h *DownloadsHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/downloads", h.HandleSubmit)
	r.Get("/downloads", h.HandleList)
	r.Get("/download/{id}", h.HandleGet)
	r.Get("/settings", h.HandleGetSettings)
	r.Put("/settings", h.HandleUpdateSettings)

	return r
}

// HandleSubmit accepts {"url": "...", ...extra} and submits it to the daemon.
// Every other key of the body is kept as caller metadata on the record.
func (h *DownloadsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	url, _ := body["url"].(string)
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")

		return
	}

	delete(body, "url")

	ctx := download.WithNavigator(r.Context(), download.NavigatorFunc(func(_ context.Context, path string) {
		w.Header().Set("Location", path)
	}))

	res, err := h.submitter.Submit(ctx, download.DownloadRequest{URL: url, Extra: body})
	if err != nil {
		logger.Error("failed to submit download", "err", err)
		writeError(w, submitErrorStatus(err), err.Error())

		return
	}

	if !res.Accepted {
		writeError(w, http.StatusUnprocessableEntity, download.RejectedMessage)

		return
	}

	writeJSON(r.Context(), w, http.StatusCreated, res.Record)
}

func (h *DownloadsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.downloads.GetDownloads(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to list downloads", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list downloads")

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, records)
}

func (h *DownloadsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.downloads.GetDownload(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())

			return
		}

		logctx.LoggerFromContext(r.Context()).Error("failed to get download", "download_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get download")

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, record)
}

func (h *DownloadsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Current(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to read settings", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read settings")

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, settings)
}

func (h *DownloadsHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings storage.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if settings.DownloadDir == "" {
		writeError(w, http.StatusBadRequest, "downloaddir is required")

		return
	}

	if err := h.settings.Update(r.Context(), settings); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to update settings", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, settings)
}

func (h *DownloadsHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="aria2_downloader"`)
			writeError(w, http.StatusUnauthorized, "invalid authorization format")

			return
		}

		if username != h.username || password != h.password {
			writeError(w, http.StatusUnauthorized, "invalid username or password")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// submitErrorStatus maps daemon failures to 502 and everything else to 500.
func submitErrorStatus(err error) int {
	var (
		netErr  *dc.NetworkError
		authErr *dc.AuthenticationError
		rpcErr  *dc.RPCError
	)

	if errors.As(err, &netErr) || errors.As(err, &authErr) || errors.As(err, &rpcErr) {
		return http.StatusBadGateway
	}

	if errors.Is(err, download.ErrNoFiles) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
