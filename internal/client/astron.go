// ABOUTME: The stock libastron session backend.
// ABOUTME: Handshake validates schema hash and version, then relays datagrams.

package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/LoopyAshy/Astron/internal/bus"
	"github.com/LoopyAshy/Astron/internal/channels"
	"github.com/LoopyAshy/Astron/internal/config"
)

// Message types spoken between a libastron client and its session.
const (
	msgClientHello      uint16 = 1
	msgClientHelloResp  uint16 = 2
	msgClientDisconnect uint16 = 3
	msgClientEject      uint16 = 4
	msgClientHeartbeat  uint16 = 5
	msgClientData       uint16 = 6
)

// Eject reason codes sent with msgClientEject.
const (
	ejectGeneric    uint16 = 106
	ejectBadVersion uint16 = 124
	ejectBadHash    uint16 = 125
	ejectCapacity   uint16 = 151
)

// AstronSession speaks the stock libastron client protocol.
//
// The first frame must be a hello carrying the client's schema hash and
// version string. A mismatch ejects the client before any channel is
// allocated. Once admitted, data frames are forwarded to the bus from the
// session's channel and bus datagrams flow back as data frames. The channel
// is released exactly once, when the session terminates for any reason.
type AstronSession struct {
	cfg    config.ClientConfig
	gw     Gateway
	conn   net.Conn
	logger *slog.Logger

	cancel context.CancelFunc

	writeMu sync.Mutex // serializes frames onto conn

	mu      sync.Mutex // guards channel
	channel channels.Channel

	releaseOnce sync.Once
}

// NewAstronSession constructs a session over an accepted connection and
// starts its goroutines. It never blocks on I/O.
func NewAstronSession(cfg config.ClientConfig, gw Gateway, conn net.Conn, logger *slog.Logger) (Session, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &AstronSession{
		cfg:    cfg,
		gw:     gw,
		conn:   conn,
		logger: logger,
		cancel: cancel,
	}
	go s.run(ctx)
	return s, nil
}

// Close terminates the session, releasing its channel and connection.
// Safe to call multiple times and concurrently with the session's own exit.
func (s *AstronSession) Close() error {
	s.shutdown()
	return nil
}

func (s *AstronSession) run(ctx context.Context) {
	defer s.shutdown()

	if err := s.handshake(); err != nil {
		s.logger.Debug("handshake failed", "remote", s.conn.RemoteAddr(), "error", err)
		return
	}

	recv, _ := s.gw.SubscribeChannel(ctx, s.Channel())
	go s.busLoop(ctx, recv)

	s.readLoop(ctx)
}

// handshake consumes the hello frame, validates it, and allocates the
// session's channel. Any failure leaves the session without a channel.
func (s *AstronSession) handshake() error {
	s.refreshDeadline()

	frame, err := readFrame(s.conn)
	if err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if len(frame) < 2 {
		return errors.New("short hello frame")
	}

	msgType := binary.LittleEndian.Uint16(frame)
	if msgType != msgClientHello {
		s.eject(ejectGeneric, "first message was not a hello")
		return fmt.Errorf("unexpected first message type %d", msgType)
	}

	payload := frame[2:]
	if len(payload) < 4 {
		s.eject(ejectGeneric, "malformed hello")
		return errors.New("malformed hello payload")
	}

	hash := binary.LittleEndian.Uint32(payload)
	version := string(payload[4:])

	if version != s.gw.Version() {
		s.eject(ejectBadVersion, "client version mismatch")
		return fmt.Errorf("client version %q, server version %q", version, s.gw.Version())
	}
	if hash != s.gw.SchemaHash() {
		s.eject(ejectBadHash, "client dc hash mismatch")
		return fmt.Errorf("client dc hash %#x, server dc hash %#x", hash, s.gw.SchemaHash())
	}

	ch, err := s.gw.AllocateChannel()
	if err != nil {
		if errors.Is(err, channels.ErrExhausted) {
			s.eject(ejectCapacity, "no channels available")
		}
		return fmt.Errorf("allocating channel: %w", err)
	}
	s.setChannel(ch)

	if err := s.writeMessage(msgClientHelloResp, nil); err != nil {
		return fmt.Errorf("writing hello response: %w", err)
	}

	s.logger.Info("client admitted", "remote", s.conn.RemoteAddr(), "channel", uint64(ch))
	return nil
}

// readLoop consumes client frames until the connection dies or the session is
// shut down. A blocked read is unblocked by shutdown closing the connection.
func (s *AstronSession) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.refreshDeadline()
		frame, err := readFrame(s.conn)
		if err != nil {
			s.logger.Debug("client connection closed", "remote", s.conn.RemoteAddr(), "error", err)
			return
		}
		if len(frame) < 2 {
			s.eject(ejectGeneric, "malformed frame")
			return
		}

		switch binary.LittleEndian.Uint16(frame) {
		case msgClientHeartbeat:
			// Deadline already refreshed above.
		case msgClientDisconnect:
			s.logger.Debug("client disconnected cleanly", "channel", uint64(s.Channel()))
			return
		case msgClientData:
			s.gw.ForwardToBus(s.Channel(), frame[2:])
		default:
			s.eject(ejectGeneric, "unknown message type")
			return
		}
	}
}

// busLoop relays datagrams addressed to the session's channel back to the
// client. A write failure closes the connection, which ends the read loop.
func (s *AstronSession) busLoop(ctx context.Context, recv <-chan bus.Datagram) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-recv:
			if !ok {
				return
			}
			if err := s.writeMessage(msgClientData, d.Payload); err != nil {
				s.logger.Debug("write to client failed", "channel", uint64(s.Channel()), "error", err)
				_ = s.conn.Close()
				return
			}
		}
	}
}

// eject notifies the client why it is being dropped. Best effort: the
// connection is torn down regardless.
func (s *AstronSession) eject(code uint16, reason string) {
	payload := make([]byte, 2+len(reason))
	binary.LittleEndian.PutUint16(payload, code)
	copy(payload[2:], reason)
	if err := s.writeMessage(msgClientEject, payload); err != nil {
		s.logger.Debug("eject write failed", "error", err)
	}
}

func (s *AstronSession) writeMessage(msgType uint16, payload []byte) error {
	frame := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(frame, msgType)
	copy(frame[2:], payload)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, frame)
}

// refreshDeadline pushes the idle deadline forward. Zero timeout disables it.
func (s *AstronSession) refreshDeadline() {
	if s.cfg.HeartbeatTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatTimeout))
	}
}

func (s *AstronSession) setChannel(ch channels.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = ch
}

// Channel returns the session's channel, or channels.InvalidChannel before
// the handshake completes.
func (s *AstronSession) Channel() channels.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// shutdown tears the session down: cancels its goroutines, releases the
// channel exactly once, and closes the connection.
func (s *AstronSession) shutdown() {
	s.cancel()
	s.releaseOnce.Do(func() {
		if ch := s.Channel(); ch != channels.InvalidChannel {
			s.gw.ReleaseChannel(ch)
			s.logger.Debug("channel released", "channel", uint64(ch))
		}
	})
	_ = s.conn.Close()
}
