package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/italolelis/aria2_downloader/internal/storage"
)

const settingDownloadDir = "downloaddir"

// SettingsRepository stores settings as key/value rows. Every Current call reads
// the table, so changes made through Update are visible to the next submission.
type SettingsRepository struct {
	db       *sql.DB
	defaults storage.Settings
}

var _ storage.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository returns a repository that falls back to defaults for
// keys that were never written.
func NewSettingsRepository(dbConn *sql.DB, defaults storage.Settings) *SettingsRepository {
	return &SettingsRepository{db: dbConn, defaults: defaults}
}

func (r *SettingsRepository) Current(ctx context.Context) (storage.Settings, error) {
	settings := r.defaults

	var dir string

	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingDownloadDir).Scan(&dir)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storage.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	default:
		settings.DownloadDir = dir
	}

	return settings, nil
}

func (r *SettingsRepository) Update(ctx context.Context, settings storage.Settings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingDownloadDir, settings.DownloadDir,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return nil
}
