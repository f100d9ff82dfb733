// ABOUTME: Gateway agent wiring config, tracker, schema hash, listener, and registry.
// ABOUTME: Construction fails fast; per-connection failures never kill the process.

package clientagent

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/LoopyAshy/Astron/internal/bus"
	"github.com/LoopyAshy/Astron/internal/channels"
	"github.com/LoopyAshy/Astron/internal/client"
	"github.com/LoopyAshy/Astron/internal/config"
	"github.com/LoopyAshy/Astron/internal/listener"
	"github.com/LoopyAshy/Astron/internal/schema"
)

// MessageBus is the routing layer the agent and its sessions publish through.
// *bus.Bus satisfies it; clustered deployments may substitute their own.
type MessageBus interface {
	Subscribe(ctx context.Context, ch channels.Channel) (<-chan bus.Datagram, string)
	Publish(ch channels.Channel, d bus.Datagram)
}

// Agent accepts client connections and admits them as sessions.
//
// Lifecycle: New resolves and validates everything that can be validated
// without touching the network; Run binds the listener and serves until the
// context is cancelled. There is no recovery path for startup failures.
type Agent struct {
	cfg      config.ClientAgentConfig
	hash     uint32
	tracker  *channels.Tracker
	registry *client.Registry
	bus      MessageBus
	listener *listener.Listener
	logger   *slog.Logger
}

// New builds an Agent from validated configuration.
//
// It fails - and the process must exit - when the backend type is not
// registered, when the TLS material is asymmetric or unloadable, or when no
// schema source is available. The listener is constructed but not bound.
func New(cfg config.ClientAgentConfig, registry *client.Registry, mbus MessageBus, def *schema.Definition, logger *slog.Logger) (*Agent, error) {
	if !registry.Has(cfg.Client.Type) {
		return nil, fmt.Errorf("no client handler registered for type %q", cfg.Client.Type)
	}

	a := &Agent{
		cfg:      cfg,
		tracker:  channels.NewTracker(cfg.Channels.Min, cfg.Channels.Max),
		registry: registry,
		bus:      mbus,
		logger:   logger.With("component", "clientagent"),
	}

	if cfg.ManualDCHash > 0 {
		a.hash = cfg.ManualDCHash
		a.logger.Info("using manual dc hash", "hash", fmt.Sprintf("%#x", a.hash))
	} else {
		if def == nil {
			return nil, fmt.Errorf("no schema definition and no manual_dc_hash configured")
		}
		a.hash = def.Hash()
		a.logger.Info("computed dc hash", "hash", fmt.Sprintf("%#x", a.hash), "dc_files", def.Files())
	}

	ln, err := a.buildListener()
	if err != nil {
		return nil, err
	}
	a.listener = ln

	return a, nil
}

// buildListener selects the transport once, at startup.
func (a *Agent) buildListener() (*listener.Listener, error) {
	tc := a.cfg.TLS

	if !tc.Enabled() {
		a.logger.Warn("TLS not configured; accepting plaintext client connections", "bind", a.cfg.Bind)
		return listener.New(a.cfg.Bind, a.handleConnection, a.logger), nil
	}

	if (tc.Certificate == "") != (tc.KeyFile == "") {
		return nil, fmt.Errorf("TLS requested but either certificate or key is missing")
	}

	tls12 := true
	if tc.TLSv12 != nil {
		tls12 = *tc.TLSv12
	}
	ln, err := listener.NewTLS(a.cfg.Bind, listener.TLSMaterial{
		CertFile:  tc.Certificate,
		KeyFile:   tc.KeyFile,
		ChainFile: tc.ChainFile,
		TLSv10:    tc.TLSv10,
		TLSv11:    tc.TLSv11,
		TLSv12:    tls12,
	}, a.handleConnection, a.logger)
	if err != nil {
		return nil, fmt.Errorf("loading TLS material: %w", err)
	}
	return ln, nil
}

// Run binds the listener and serves accepted connections until ctx is
// cancelled. A bind failure is fatal: it propagates to the caller, which
// reports it and exits non-zero.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.listener.Bind(); err != nil {
		return fmt.Errorf("could not bind listening port: %w", err)
	}

	// The agent's own control traffic arrives on the reserved control
	// channel. The handler is an extension point; it must never block.
	control, _ := a.bus.Subscribe(ctx, channels.ControlChannel)
	go a.consumeControl(ctx, control)

	a.logger.Info("client agent listening",
		"addr", a.listener.Addr().String(),
		"client_type", a.cfg.Client.Type,
		"channels_min", uint64(a.cfg.Channels.Min),
		"channels_max", uint64(a.cfg.Channels.Max),
	)

	return a.listener.Serve(ctx)
}

// BoundAddr returns the listener's address once Run has bound it, nil before.
func (a *Agent) BoundAddr() net.Addr {
	return a.listener.Addr()
}

// handleConnection runs on the accept loop for every new connection.
// It must not block; sessions drive their own handshake goroutines.
func (a *Agent) handleConnection(conn net.Conn) {
	remote := conn.RemoteAddr()
	if remote == nil {
		// The peer vanished between accept and dispatch. Not an error;
		// nothing was allocated on its behalf.
		_ = conn.Close()
		return
	}

	a.logger.Debug("incoming connection", "remote", remote.String())

	_, err := a.registry.Instantiate(a.cfg.Client.Type, a.cfg.Client, a, conn)
	if err != nil {
		a.logger.Warn("discarding connection", "remote", remote.String(), "error", err)
		_ = conn.Close()
		return
	}
}

// consumeControl drains datagrams addressed to the agent itself.
func (a *Agent) consumeControl(ctx context.Context, recv <-chan bus.Datagram) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-recv:
			if !ok {
				return
			}
			a.handleControlDatagram(d)
		}
	}
}

// handleControlDatagram handles control traffic addressed to the agent.
// The agent does not act on any control messages yet.
func (a *Agent) handleControlDatagram(d bus.Datagram) {
	a.logger.Debug("control datagram ignored", "sender", uint64(d.Sender), "bytes", len(d.Payload))
}

// AllocateChannel implements client.Gateway.
func (a *Agent) AllocateChannel() (channels.Channel, error) {
	return a.tracker.Allocate()
}

// ReleaseChannel implements client.Gateway.
func (a *Agent) ReleaseChannel(ch channels.Channel) {
	a.tracker.Release(ch)
}

// ForwardToBus implements client.Gateway.
func (a *Agent) ForwardToBus(ch channels.Channel, payload []byte) {
	a.bus.Publish(ch, bus.Datagram{Sender: ch, Payload: payload})
}

// SubscribeChannel implements client.Gateway.
func (a *Agent) SubscribeChannel(ctx context.Context, ch channels.Channel) (<-chan bus.Datagram, string) {
	return a.bus.Subscribe(ctx, ch)
}

// Version implements client.Gateway.
func (a *Agent) Version() string {
	return a.cfg.Version
}

// SchemaHash implements client.Gateway.
func (a *Agent) SchemaHash() uint32 {
	return a.hash
}
