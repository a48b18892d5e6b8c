package dc

import (
	"context"

	"github.com/italolelis/aria2_downloader/internal/telemetry"
)

// InstrumentedDaemon wraps a Daemon with telemetry.
type InstrumentedDaemon struct {
	daemon     Daemon
	telemetry  *telemetry.Telemetry
	clientType string
}

var _ Daemon = (*InstrumentedDaemon)(nil)

func NewInstrumentedDaemon(daemon Daemon, tel *telemetry.Telemetry, clientType string) *InstrumentedDaemon {
	return &InstrumentedDaemon{
		daemon:     daemon,
		telemetry:  tel,
		clientType: clientType,
	}
}

func (d *InstrumentedDaemon) Authenticate(ctx context.Context) error {
	return d.telemetry.InstrumentClientOperation(ctx, d.clientType, "authenticate", func(ctx context.Context) error {
		return d.daemon.Authenticate(ctx)
	})
}

func (d *InstrumentedDaemon) AddURI(ctx context.Context, uris []string, opts AddOptions) (string, error) {
	var gid string

	err := d.telemetry.InstrumentClientOperation(ctx, d.clientType, "add_uri", func(ctx context.Context) error {
		var err error

		gid, err = d.daemon.AddURI(ctx, uris, opts)

		return err
	})

	return gid, err
}

func (d *InstrumentedDaemon) TellStatus(ctx context.Context, gid string) (Status, error) {
	var status Status

	err := d.telemetry.InstrumentClientOperation(ctx, d.clientType, "tell_status", func(ctx context.Context) error {
		var err error

		status, err = d.daemon.TellStatus(ctx, gid)

		return err
	})

	return status, err
}

func (d *InstrumentedDaemon) GetFiles(ctx context.Context, gid string) ([]File, error) {
	var files []File

	err := d.telemetry.InstrumentClientOperation(ctx, d.clientType, "get_files", func(ctx context.Context) error {
		var err error

		files, err = d.daemon.GetFiles(ctx, gid)

		return err
	})

	return files, err
}
