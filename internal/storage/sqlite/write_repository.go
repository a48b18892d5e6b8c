package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/italolelis/aria2_downloader/internal/storage"
)

// AppendDownload inserts record at the end of the download list. CreatedAt and
// UpdatedAt are set on the record.
func (r *DownloadRepository) AppendDownload(ctx context.Context, record *storage.DownloadRecord) error {
	fields, err := encodeFields(record.Fields)
	if err != nil {
		return err
	}

	now := r.now().UTC().Truncate(time.Second)

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO downloads (id, gid, url, name, download_status, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.GID, record.URL, record.Name, record.DownloadStatus, fields,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert download %s: %w", record.ID, err)
	}

	record.CreatedAt = now
	record.UpdatedAt = now

	return nil
}

// UpdateDownloadStatus sets the status of a download and replaces its fields.
// Nil fields leave the stored fields untouched.
func (r *DownloadRepository) UpdateDownloadStatus(ctx context.Context, id, status string, fields map[string]any) error {
	var encoded any

	if fields != nil {
		b, err := encodeFields(fields)
		if err != nil {
			return err
		}

		encoded = b
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE downloads SET download_status = ?, fields = COALESCE(?, fields), updated_at = ? WHERE id = ?`,
		status, encoded, r.now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update download %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode download fields: %w", err)
	}

	return string(b), nil
}
