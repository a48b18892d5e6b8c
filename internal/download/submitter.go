// Package download implements the submission workflow: hand a URL to the
// download daemon, record the new transfer and announce it.
package download

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/aria2_downloader/internal/dc"
	"github.com/italolelis/aria2_downloader/internal/events"
	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/italolelis/aria2_downloader/internal/notifier"
	"github.com/italolelis/aria2_downloader/internal/storage"
	"github.com/italolelis/aria2_downloader/internal/telemetry"
)

const (
	maxConnectionPerServer = 16
	// developmentDownloadLimit throttles transfers in development builds.
	developmentDownloadLimit = "10K"

	// RejectedMessage is the notification sent when the daemon refuses a transfer.
	RejectedMessage = "Bad URL"
)

// ErrNoFiles is returned when the daemon lists no files for a new transfer.
var ErrNoFiles = errors.New("daemon reported no files")

// DownloadRequest is a submission: the URL to fetch and optional caller
// metadata that ends up in the record's fields.
type DownloadRequest struct {
	URL   string
	Extra map[string]any
}

// Result is the outcome of a submission. Accepted is false when the daemon
// rejected the transfer; Record is set only when it was accepted.
type Result struct {
	Accepted bool
	Record   *storage.DownloadRecord
}

type Submitter struct {
	daemon      dc.Daemon
	settings    storage.SettingsReader
	repo        storage.DownloadAppender
	publisher   events.Publisher
	notifier    notifier.Notifier
	telemetry   *telemetry.Telemetry
	development bool
	newID       func() string
}

type Option func(*Submitter)

// WithDevelopment enables the development build behaviour (throttled transfers).
func WithDevelopment(development bool) Option {
	return func(s *Submitter) {
		s.development = development
	}
}

// WithIDGenerator replaces the UUID v4 record ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Submitter) {
		s.newID = fn
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Submitter) {
		s.telemetry = tel
	}
}

func NewSubmitter(
	daemon dc.Daemon,
	settings storage.SettingsReader,
	repo storage.DownloadAppender,
	publisher events.Publisher,
	n notifier.Notifier,
	opts ...Option,
) *Submitter {
	s := &Submitter{
		daemon:    daemon,
		settings:  settings,
		repo:      repo,
		publisher: publisher,
		notifier:  n,
		newID:     uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit runs the submission workflow for req. A transfer the daemon rejects
// yields Result{Accepted: false} and a nil error; nothing is stored or
// published in that case. Any other failure is returned as an error.
func (s *Submitter) Submit(ctx context.Context, req DownloadRequest) (Result, error) {
	var record *storage.DownloadRecord

	accepted, err := s.telemetry.InstrumentSubmission(ctx, func(ctx context.Context) (bool, error) {
		var err error

		record, err = s.submit(ctx, req)

		return record != nil, err
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Accepted: accepted, Record: record}, nil
}

func (s *Submitter) submit(ctx context.Context, req DownloadRequest) (*storage.DownloadRecord, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	id := s.newID()

	ctx, logger := logctx.With(ctx, "download_id", id)

	gid, err := s.daemon.AddURI(ctx, []string{req.URL}, s.addOptions(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to add download: %w", err)
	}

	ctx, logger = logctx.With(ctx, "gid", gid)

	status, err := s.daemon.TellStatus(ctx, gid)
	if err != nil {
		if dc.IsRejected(err) {
			logger.WarnContext(ctx, "download rejected by daemon", "url", req.URL, "err", err)
			s.notifyRejected(ctx)

			return nil, nil
		}

		return nil, fmt.Errorf("failed to get download status: %w", err)
	}

	files, err := s.daemon.GetFiles(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("failed to get download files: %w", err)
	}

	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	name := files[0].Name()

	base := make(map[string]any, len(req.Extra)+3)
	maps.Copy(base, req.Extra)
	base["id"] = id
	base["downloadStatus"] = storage.StatusDownloading
	base["gid"] = gid

	fields := ResolveFields(base, status, name)

	record := &storage.DownloadRecord{
		ID:             id,
		GID:            stringField(fields, "gid"),
		URL:            req.URL,
		Name:           name,
		DownloadStatus: stringField(fields, "downloadStatus"),
		Fields:         fields,
	}

	if err := s.repo.AppendDownload(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store download: %w", err)
	}

	logger.InfoContext(ctx, "download added", "name", name, "size", humanize.Bytes(status.TotalLength()))

	s.publisher.Publish(ctx, events.Event{Type: events.DownloadAdded, Download: *record})

	NavigatorFromContext(ctx).Navigate(ctx, DetailsPath(id))

	return record, nil
}

func (s *Submitter) addOptions(settings storage.Settings) dc.AddOptions {
	opts := dc.AddOptions{
		Dir:                    settings.DownloadDir,
		MaxConnectionPerServer: maxConnectionPerServer,
		Continue:               true,
	}

	if s.development {
		opts.MaxDownloadLimit = developmentDownloadLimit
	}

	return opts
}

func (s *Submitter) notifyRejected(ctx context.Context) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Notify(ctx, RejectedMessage); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to send notification", "err", err)
	}
}
