// Package tracker follows recorded downloads on the daemon and keeps their
// status in step with what the daemon reports.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/aria2_downloader/internal/dc"
	"github.com/italolelis/aria2_downloader/internal/events"
	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/italolelis/aria2_downloader/internal/storage"
	"github.com/italolelis/aria2_downloader/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

type Tracker struct {
	repo         storage.DownloadRepository
	daemon       dc.Daemon
	publisher    events.Publisher
	telemetry    *telemetry.Telemetry
	interval     time.Duration
	maxParallel  int
	restartDelay time.Duration
}

func New(
	repo storage.DownloadRepository,
	daemon dc.Daemon,
	publisher events.Publisher,
	tel *telemetry.Telemetry,
	interval time.Duration,
	maxParallel int,
) *Tracker {
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Tracker{
		repo:         repo,
		daemon:       daemon,
		publisher:    publisher,
		telemetry:    tel,
		interval:     interval,
		maxParallel:  maxParallel,
		restartDelay: time.Second,
	}
}

// Watch polls the daemon every interval until ctx is cancelled. A panic in a
// polling pass is logged and the loop is started again.
func (t *Tracker) Watch(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("tracking downloads", "interval", t.interval.String(), "max_parallel", t.maxParallel)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("download tracker panic",
					"operation", "watch",
					"panic", r,
					"stack", string(debug.Stack()))

				if ctx.Err() == nil {
					logger.Info("restarting download tracker after panic", "operation", "watch")
					time.Sleep(t.restartDelay)
					t.Watch(ctx)
				}
			}
		}()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("download tracker shutdown", "operation", "watch", "reason", "context_cancelled")

				return
			case <-ticker.C:
				if err := t.Sync(ctx); err != nil {
					logger.Error("failed to sync downloads", "err", err)
				}
			}
		}
	}()
}

// pollStatuses are the record states that can still change on the daemon. A
// paused transfer may be resumed and finish later.
var pollStatuses = []string{storage.StatusDownloading, storage.StatusPaused}

// Sync runs a single polling pass over every record that has not reached a final
// state. Records are independent: a failing record does not stop the others, and
// all failures are returned joined.
func (t *Tracker) Sync(ctx context.Context) error {
	var records []storage.DownloadRecord

	for _, status := range pollStatuses {
		found, err := t.repo.GetDownloadsByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to get %s downloads: %w", status, err)
		}

		records = append(records, found...)
	}

	logctx.LoggerFromContext(ctx).Debug("syncing downloads", "download_count", len(records))

	var (
		wg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	wg.SetLimit(t.maxParallel)

	for i := range records {
		record := records[i]

		wg.Go(func() error {
			if err := t.syncOne(ctx, record); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = wg.Wait()

	return errors.Join(errs...)
}

func (t *Tracker) syncOne(ctx context.Context, record storage.DownloadRecord) error {
	ctx, logger := logctx.With(ctx, "download_id", record.ID, "gid", record.GID)

	status, err := t.daemon.TellStatus(ctx, record.GID)
	if err != nil {
		if !dc.IsRejected(err) {
			return fmt.Errorf("failed to get status for download %s: %w", record.ID, err)
		}

		// The daemon no longer knows the transfer, e.g. after a restart.
		logger.Warn("download unknown to daemon", "err", err)

		status = dc.Status{"status": storage.StatusRemoved}
	}

	next := DownloadStatus(status.State())
	if next == record.DownloadStatus {
		logger.Debug("download unchanged",
			"status", next,
			"completed", humanize.Bytes(status.CompletedLength()),
			"total", humanize.Bytes(status.TotalLength()))

		return nil
	}

	fields := make(map[string]any, len(record.Fields)+len(status))
	maps.Copy(fields, record.Fields)
	maps.Copy(fields, status)
	fields["name"] = record.Name
	fields["downloadStatus"] = next

	if err := t.repo.UpdateDownloadStatus(ctx, record.ID, next, fields); err != nil {
		return fmt.Errorf("failed to update download %s: %w", record.ID, err)
	}

	if next == storage.StatusError {
		logger.Warn("download failed", "reason", status.ErrorMessage())
	}

	logger.Info("download status changed",
		"from", record.DownloadStatus,
		"status", next,
		"size", humanize.Bytes(status.TotalLength()))

	t.telemetry.RecordTrackerTransition(ctx, next)

	record.DownloadStatus = next
	record.Fields = fields

	t.publisher.Publish(ctx, events.Event{Type: events.DownloadUpdated, Download: record})

	return nil
}

// DownloadStatus maps a daemon transfer state onto a record status. Active and
// waiting transfers, and states the daemon may add later, are downloading.
func DownloadStatus(state string) string {
	switch state {
	case "complete":
		return storage.StatusComplete
	case "error":
		return storage.StatusError
	case "removed":
		return storage.StatusRemoved
	case "paused":
		return storage.StatusPaused
	default:
		return storage.StatusDownloading
	}
}
