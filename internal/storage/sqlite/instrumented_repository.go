package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/aria2_downloader/internal/storage"
	"github.com/italolelis/aria2_downloader/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

var _ storage.DownloadRepository = (*InstrumentedDownloadRepository)(nil)

func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedDownloadRepository) GetDownloads(ctx context.Context) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetDownloads(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) GetDownload(ctx context.Context, id string) (*storage.DownloadRecord, error) {
	var result *storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_download", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetDownload(ctx, id)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) GetDownloadsByStatus(ctx context.Context, status string) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads_by_status", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetDownloadsByStatus(ctx, status)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) AppendDownload(ctx context.Context, record *storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "append_download", func(ctx context.Context) error {
		return r.repo.AppendDownload(ctx, record)
	})
}

func (r *InstrumentedDownloadRepository) UpdateDownloadStatus(ctx context.Context, id, status string, fields map[string]any) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_download_status", func(ctx context.Context) error {
		return r.repo.UpdateDownloadStatus(ctx, id, status, fields)
	})
}
