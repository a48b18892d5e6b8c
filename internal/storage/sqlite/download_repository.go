package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/italolelis/aria2_downloader/internal/storage"
)

// DownloadRepository implements storage.DownloadRepository on SQLite. Reads live
// in read_repository.go, writes in write_repository.go.
type DownloadRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.DownloadRepository = (*DownloadRepository)(nil)

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn, now: time.Now}
}

const selectDownloads = `SELECT id, gid, url, name, download_status, fields, created_at, updated_at FROM downloads`

type scanner interface {
	Scan(dest ...any) error
}

func scanDownload(row scanner) (storage.DownloadRecord, error) {
	var (
		record               storage.DownloadRecord
		url, name            sql.NullString
		fields               string
		createdAt, updatedAt string
	)

	if err := row.Scan(&record.ID, &record.GID, &url, &name, &record.DownloadStatus, &fields, &createdAt, &updatedAt); err != nil {
		return record, err
	}

	record.URL = url.String
	record.Name = name.String

	if err := json.Unmarshal([]byte(fields), &record.Fields); err != nil {
		return record, fmt.Errorf("failed to decode fields of download %s: %w", record.ID, err)
	}

	record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	record.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return record, nil
}
