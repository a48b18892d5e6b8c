package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/italolelis/aria2_downloader/internal/storage"
)

// GetDownloads returns every record in append order.
func (r *DownloadRepository) GetDownloads(ctx context.Context) ([]storage.DownloadRecord, error) {
	return r.query(ctx, selectDownloads+` ORDER BY seq`)
}

// GetDownloadsByStatus returns the records with the given status in append order.
func (r *DownloadRepository) GetDownloadsByStatus(ctx context.Context, status string) ([]storage.DownloadRecord, error) {
	return r.query(ctx, selectDownloads+` WHERE download_status = ? ORDER BY seq`, status)
}

func (r *DownloadRepository) GetDownload(ctx context.Context, id string) (*storage.DownloadRecord, error) {
	record, err := scanDownload(r.db.QueryRowContext(ctx, selectDownloads+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get download %s: %w", id, err)
	}

	return &record, nil
}

func (r *DownloadRepository) query(ctx context.Context, query string, args ...any) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select downloads: %w", err)
	}
	defer rows.Close()

	downloads := make([]storage.DownloadRecord, 0)

	for rows.Next() {
		record, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}

		downloads = append(downloads, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return downloads, nil
}
