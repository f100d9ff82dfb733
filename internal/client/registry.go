// ABOUTME: Thread-safe name-to-constructor registry for session backends.
// ABOUTME: Unknown types are rejected at startup, before the listener binds.

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/LoopyAshy/Astron/internal/bus"
	"github.com/LoopyAshy/Astron/internal/channels"
	"github.com/LoopyAshy/Astron/internal/config"
)

// ErrUnknownClientType indicates no backend is registered under the name.
var ErrUnknownClientType = errors.New("unknown client type")

// ErrClientTypeRegistered indicates a backend name collision on Register.
var ErrClientTypeRegistered = errors.New("client type already registered")

// Gateway is the agent surface exposed to a session.
//
// A session owns exactly one channel for its lifetime: it allocates it during
// its handshake and must release it exactly once, when it terminates.
type Gateway interface {
	// AllocateChannel returns a unique channel for the session, or
	// channels.ErrExhausted when the address space is full. Exhaustion is a
	// normal result; the session rejects its client gracefully.
	AllocateChannel() (channels.Channel, error)

	// ReleaseChannel returns the session's channel to the pool.
	ReleaseChannel(ch channels.Channel)

	// ForwardToBus publishes a payload from the session's channel.
	ForwardToBus(ch channels.Channel, payload []byte)

	// SubscribeChannel delivers bus datagrams addressed to ch until ctx is
	// cancelled.
	SubscribeChannel(ctx context.Context, ch channels.Channel) (<-chan bus.Datagram, string)

	// Version is the opaque version string echoed to clients.
	Version() string

	// SchemaHash is the fingerprint clients must match to be admitted.
	SchemaHash() uint32
}

// Session is a live per-connection handler. Sessions drive themselves; the
// agent only retains the ability to shut one down.
type Session interface {
	Close() error
}

// Constructor builds a session from an accepted connection. It must not block:
// any handshake I/O happens on goroutines the session owns. A constructor
// error discards only that connection.
type Constructor func(cfg config.ClientConfig, gw Gateway, conn net.Conn, logger *slog.Logger) (Session, error)

// Registry maps backend type names to session constructors.
type Registry struct {
	mu     sync.RWMutex
	ctors  map[string]Constructor
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		ctors:  make(map[string]Constructor),
		logger: logger,
	}
}

// NewDefaultRegistry creates a Registry with the stock backends registered.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	// The stock backend cannot collide in a fresh registry.
	_ = r.Register("libastron", NewAstronSession)
	return r
}

// Register adds a backend under the given name.
// Returns ErrClientTypeRegistered if the name is already taken.
func (r *Registry) Register(name string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("%w: %q", ErrClientTypeRegistered, name)
	}
	r.ctors[name] = ctor
	return nil
}

// Has reports whether a backend is registered under the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.ctors[name]
	return ok
}

// Instantiate constructs a session of the named type for an accepted
// connection. Returns ErrUnknownClientType for unregistered names; any other
// error means the single connection is discarded while the gateway keeps
// serving.
func (r *Registry) Instantiate(name string, cfg config.ClientConfig, gw Gateway, conn net.Conn) (Session, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClientType, name)
	}

	sess, err := ctor(cfg, gw, conn, r.logger.With("client_type", name))
	if err != nil {
		return nil, fmt.Errorf("instantiating %q session: %w", name, err)
	}
	return sess, nil
}
