package storage

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"
)

// ErrNotFound is returned when a download record does not exist.
var ErrNotFound = errors.New("download not found")

// Download statuses. A record starts as StatusDownloading; only the tracker moves
// it to one of the others.
const (
	StatusDownloading = "downloading"
	StatusComplete    = "complete"
	StatusError       = "error"
	StatusRemoved     = "removed"
	StatusPaused      = "paused"
)

// DownloadRecord is the persisted, application-level representation of a download.
type DownloadRecord struct {
	ID             string
	GID            string
	URL            string
	Name           string
	DownloadStatus string
	// Fields is the merged field set: caller metadata, daemon status fields and
	// the resolved name.
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarshalJSON renders the record as one flat object. Typed fields win over
// entries in Fields with the same key.
func (r DownloadRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+7)
	maps.Copy(out, r.Fields)

	out["id"] = r.ID
	out["gid"] = r.GID
	out["name"] = r.Name
	out["downloadStatus"] = r.DownloadStatus

	if r.URL != "" {
		out["url"] = r.URL
	}

	if !r.CreatedAt.IsZero() {
		out["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339)
	}

	if !r.UpdatedAt.IsZero() {
		out["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return json.Marshal(out)
}

// Settings are the user-editable application settings.
type Settings struct {
	DownloadDir string `json:"downloaddir"`
}

// DownloadAppender appends records to the durable download list.
type DownloadAppender interface {
	AppendDownload(ctx context.Context, record *DownloadRecord) error
}

type DownloadReadRepository interface {
	GetDownloads(ctx context.Context) ([]DownloadRecord, error)
	GetDownload(ctx context.Context, id string) (*DownloadRecord, error)
	GetDownloadsByStatus(ctx context.Context, status string) ([]DownloadRecord, error)
}

type DownloadWriteRepository interface {
	DownloadAppender
	// UpdateDownloadStatus sets the status and replaces the merged fields of a
	// record. Nil fields keep the stored ones.
	UpdateDownloadStatus(ctx context.Context, id, status string, fields map[string]any) error
}

type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}

// SettingsReader exposes the live settings. Implementations must return the
// current value on every call.
type SettingsReader interface {
	Current(ctx context.Context) (Settings, error)
}

type SettingsRepository interface {
	SettingsReader
	Update(ctx context.Context, settings Settings) error
}
