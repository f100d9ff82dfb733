// ABOUTME: Thread-safe allocator for unique session channels within a bounded range.
// ABOUTME: Monotonic cursor with a FIFO queue of released channels for reuse.

package channels

import (
	"errors"
	"sync"
)

// ErrExhausted indicates the tracker has no channels left to hand out.
var ErrExhausted = errors.New("channel range exhausted")

// Channel is a unique numeric address identifying one session's endpoint on
// the internal message bus.
type Channel uint64

const (
	// InvalidChannel is the zero sentinel. It is never allocated and never
	// valid in configuration.
	InvalidChannel Channel = 0

	// ReservedMin and ReservedMax bound the prefix of the namespace that is
	// permanently excluded from allocation and set aside for system use.
	ReservedMin Channel = 1
	ReservedMax Channel = 999

	// ControlChannel carries the client agent's own control traffic on the
	// message bus. It lives inside the reserved prefix.
	ControlChannel Channel = 1
)

// Reserved reports whether ch falls inside the reserved system prefix.
func Reserved(ch Channel) bool {
	return ch >= ReservedMin && ch <= ReservedMax
}

// Tracker allocates unique channels from a closed [min, max] range.
//
// Channels are issued from a monotonic cursor until the range is exhausted,
// after which released channels are reissued in FIFO order. FIFO avoids
// instant-reuse bias but promises nothing stronger. All methods are safe for
// concurrent use; none of them block.
type Tracker struct {
	mu   sync.Mutex
	next Channel
	max  Channel
	free []Channel
}

// NewTracker creates a Tracker over the inclusive range [min, max].
// The range must already be validated (non-invalid, non-reserved, min <= max).
func NewTracker(min, max Channel) *Tracker {
	return &Tracker{next: min, max: max}
}

// Allocate returns the next unique channel.
//
// It prefers never-issued channels, falls back to the oldest released one,
// and returns ErrExhausted once neither is available. ErrExhausted is a
// normal result: the caller rejects the new session and the process keeps
// serving.
func (t *Tracker) Allocate() (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next <= t.max {
		ch := t.next
		t.next++
		return ch, nil
	}
	if len(t.free) > 0 {
		ch := t.free[0]
		t.free = t.free[1:]
		return ch, nil
	}
	return InvalidChannel, ErrExhausted
}

// Release returns a channel to the reuse queue.
//
// The tracker trusts the caller: it does not verify that ch was previously
// allocated or is no longer live. Sessions must release their channel exactly
// once, exactly when they terminate.
func (t *Tracker) Release(ch Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.free = append(t.free, ch)
}
