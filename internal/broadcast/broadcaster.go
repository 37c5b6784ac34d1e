// ABOUTME: In-memory fan-out of aggregate store changes to presentation clients
// ABOUTME: Subscribers may filter by collection; slow subscribers drop changes

package broadcast

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Change describes one mutation of a store collection.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	At         time.Time `json:"at"`
}

type subscriber struct {
	ch          chan Change
	collections []string // empty means all
}

func (s *subscriber) wants(collection string) bool {
	return len(s.collections) == 0 || slices.Contains(s.collections, collection)
}

// Broadcaster provides in-memory pub/sub for store changes.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber // subID -> subscriber
	closed      bool
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for default.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*subscriber),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for changes to the given collections, or
// to every collection when none are given. The subscription is removed when
// ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, collections ...string) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = &subscriber{ch: ch, collections: collections}
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "collections", collections)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends c to every interested subscriber without blocking. Sends
// happen under the read lock so Unsubscribe cannot close a channel mid-send.
func (b *Broadcaster) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, sub := range b.subscribers {
		if !sub.wants(c.Collection) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"sub_id", subID,
				"collection", c.Collection,
				"id", c.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(sub.ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels. Later subscriptions are closed
// immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
