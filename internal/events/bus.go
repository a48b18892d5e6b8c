// Package events is the in-process application state feed: components publish
// download events and observers (notifications, logging) subscribe to them.
package events

import (
	"context"
	"sync"

	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/italolelis/aria2_downloader/internal/storage"
)

type Type string

const (
	// DownloadAdded is published once per accepted submission.
	DownloadAdded Type = "download.added"
	// DownloadUpdated is published when the tracker changes a record's status.
	DownloadUpdated Type = "download.updated"
)

type Event struct {
	Type     Type
	Download storage.DownloadRecord
}

// Publisher announces events to interested observers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Bus fans events out to subscriber channels. Publish never blocks: an event
// for a subscriber whose buffer is full is dropped and logged.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	closed      bool
}

var _ Publisher = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]chan Event)}
}

// Subscribe registers a new observer. The returned function unsubscribes and
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)

	if b.closed {
		close(ch)

		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
}

func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			logctx.LoggerFromContext(ctx).WarnContext(ctx, "dropping event for slow subscriber",
				"event", event.Type, "download_id", event.Download.ID, "subscriber", id)
		}
	}
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
