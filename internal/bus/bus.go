// ABOUTME: Channel-keyed in-memory fan-out bus with non-blocking publish.
// ABOUTME: Subscriptions are uuid-tagged and cleaned up on context cancel.

package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/LoopyAshy/Astron/internal/channels"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// Slow subscribers drop datagrams rather than stall publishers.
const subscriberBufferSize = 64

// Datagram is one message routed over the bus.
type Datagram struct {
	// Sender is the channel the datagram originated from, or
	// channels.InvalidChannel when the origin is not a session.
	Sender channels.Channel

	// Payload is the opaque message body.
	Payload []byte
}

// Bus routes datagrams between channels in memory.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[channels.Channel]map[string]chan Datagram
	logger      *slog.Logger
}

// New creates a Bus. Pass nil logger for the default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[channels.Channel]map[string]chan Datagram),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber on the given channel. It returns a receive
// channel and a subscription ID for later unsubscription. The subscription is
// automatically removed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, ch channels.Channel) (<-chan Datagram, string) {
	subID := uuid.New().String()
	recv := make(chan Datagram, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[ch]; !ok {
		b.subscribers[ch] = make(map[string]chan Datagram)
	}
	b.subscribers[ch][subID] = recv
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "channel", uint64(ch), "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(ch, subID)
	}()

	return recv, subID
}

// Publish delivers a datagram to every subscriber of the given channel.
// Non-blocking: the datagram is dropped for subscribers whose buffers are full.
//
// Sends happen under the read lock. Unsubscribe and Close hold the write lock
// while closing receive channels, so a send can never race a close; the sends
// are non-blocking, so holding the lock across them is cheap.
func (b *Bus) Publish(ch channels.Channel, d Datagram) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, recv := range b.subscribers[ch] {
		select {
		case recv <- d:
		default:
			b.logger.Debug("dropped datagram for slow subscriber",
				"channel", uint64(ch),
				"sender", uint64(d.Sender))
		}
	}
}

// Unsubscribe removes a subscription and closes its receive channel.
func (b *Bus) Unsubscribe(ch channels.Channel, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[ch]
	if !ok {
		return
	}
	recv, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(recv)

	if len(subs) == 0 {
		delete(b.subscribers, ch)
	}

	b.logger.Debug("subscriber removed", "channel", uint64(ch), "sub_id", subID)
}

// Close shuts down the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, subs := range b.subscribers {
		for subID, recv := range subs {
			close(recv)
			delete(subs, subID)
		}
		delete(b.subscribers, ch)
	}

	b.logger.Debug("bus closed")
}
