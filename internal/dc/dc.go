// Package dc defines the contract between the application and the external
// download daemon that performs the actual transfers.
package dc

import (
	"context"
	"strconv"
	"strings"
)

// Daemon is the subset of the download daemon's RPC surface the application uses.
type Daemon interface {
	// Authenticate verifies connectivity and credentials.
	Authenticate(ctx context.Context) error
	// AddURI queues uris as a single transfer and returns its GID.
	AddURI(ctx context.Context, uris []string, opts AddOptions) (string, error)
	// TellStatus returns the daemon's status fields for gid, untouched.
	TellStatus(ctx context.Context, gid string) (Status, error)
	// GetFiles lists the files that belong to gid.
	GetFiles(ctx context.Context, gid string) ([]File, error)
}

// AddOptions are the per-transfer options sent with AddURI.
type AddOptions struct {
	Dir                    string
	MaxConnectionPerServer int
	Continue               bool
	// MaxDownloadLimit caps the transfer rate, e.g. "10K". Empty means unlimited
	// and the option is not sent at all.
	MaxDownloadLimit string
}

// Status is the opaque field set returned by the daemon for a transfer.
type Status map[string]any

// State returns the daemon-reported transfer state ("active", "complete", ...).
func (s Status) State() string {
	state, _ := s["status"].(string)

	return state
}

// ErrorMessage returns the daemon-reported failure reason, if any.
func (s Status) ErrorMessage() string {
	msg, _ := s["errorMessage"].(string)

	return msg
}

// TotalLength returns the transfer size in bytes, 0 while unknown.
func (s Status) TotalLength() uint64 {
	return s.uint("totalLength")
}

// CompletedLength returns the number of bytes downloaded so far.
func (s Status) CompletedLength() uint64 {
	return s.uint("completedLength")
}

// aria2 encodes numbers as decimal strings; decoded JSON numbers and plain ints
// are accepted as well.
func (s Status) uint(key string) uint64 {
	switch v := s[key].(type) {
	case string:
		n, _ := strconv.ParseUint(v, 10, 64)

		return n
	case float64:
		if v > 0 {
			return uint64(v)
		}
	case int:
		if v > 0 {
			return uint64(v)
		}
	case int64:
		if v > 0 {
			return uint64(v)
		}
	}

	return 0
}

type File struct {
	Index  string `json:"index"`
	Path   string `json:"path"`
	Length string `json:"length"`
}

// Name returns the segment after the last "/" of the file path.
func (f File) Name() string {
	if i := strings.LastIndex(f.Path, "/"); i >= 0 {
		return f.Path[i+1:]
	}

	return f.Path
}
