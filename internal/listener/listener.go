// ABOUTME: TCP acceptor with optional TLS termination built from PEM material.
// ABOUTME: Bind failures are fatal to the caller; accepts run until ctx cancel.

package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Handler is invoked once per accepted connection, on the accept loop.
// It must not block: session goroutines do the actual work.
type Handler func(conn net.Conn)

// TLSMaterial is the PEM file triple plus protocol version flags used to
// build the TLS context. Legacy versions stay disabled unless enabled here.
type TLSMaterial struct {
	CertFile  string
	KeyFile   string
	ChainFile string

	TLSv10 bool
	TLSv11 bool
	TLSv12 bool
}

// minVersion maps the enabled version flags to the lowest accepted version.
func (m TLSMaterial) minVersion() uint16 {
	switch {
	case m.TLSv10:
		return tls.VersionTLS10
	case m.TLSv11:
		return tls.VersionTLS11
	case m.TLSv12:
		return tls.VersionTLS12
	default:
		return tls.VersionTLS13
	}
}

// NewTLSConfig loads the material and builds a TLS context once.
// Any missing or corrupt file, or a key that does not match the certificate,
// is an error the caller treats as fatal.
func NewTLSConfig(m TLSMaterial) (*tls.Config, error) {
	certPEM, err := os.ReadFile(m.CertFile)
	if err != nil {
		return nil, fmt.Errorf("reading certificate %q: %w", m.CertFile, err)
	}
	keyPEM, err := os.ReadFile(m.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key %q: %w", m.KeyFile, err)
	}

	// A chain file is presented to clients along with the leaf certificate.
	if m.ChainFile != "" {
		chainPEM, err := os.ReadFile(m.ChainFile)
		if err != nil {
			return nil, fmt.Errorf("reading chain %q: %w", m.ChainFile, err)
		}
		certPEM = append(certPEM, '\n')
		certPEM = append(certPEM, chainPEM...)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading key pair %q / %q: %w", m.CertFile, m.KeyFile, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   m.minVersion(),
	}, nil
}

// Listener accepts connections on one address and hands them to a Handler.
type Listener struct {
	addr    string
	tlsConf *tls.Config
	handler Handler
	logger  *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// New creates a plaintext listener.
func New(addr string, handler Handler, logger *slog.Logger) *Listener {
	return &Listener{
		addr:    addr,
		handler: handler,
		logger:  logger.With("component", "listener"),
	}
}

// NewTLS creates a TLS-terminated listener from the given material.
func NewTLS(addr string, material TLSMaterial, handler Handler, logger *slog.Logger) (*Listener, error) {
	tlsConf, err := NewTLSConfig(material)
	if err != nil {
		return nil, err
	}
	return &Listener{
		addr:    addr,
		tlsConf: tlsConf,
		handler: handler,
		logger:  logger.With("component", "listener"),
	}, nil
}

// Bind binds the listening socket. Called exactly once, at startup; a failure
// here (address in use, permission denied) is fatal to the caller.
func (l *Listener) Bind() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}
	if l.tlsConf != nil {
		ln = tls.NewListener(ln, l.tlsConf)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Bind succeeds.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled. Each accepted connection
// is passed to the handler on the accept goroutine; transient accept errors
// are logged and skipped.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return errors.New("listener not bound")
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.logger.Warn("transient accept error", "error", err)
				continue
			}
			return fmt.Errorf("accepting on %s: %w", l.addr, err)
		}

		l.handler(conn)
	}
}

// Close shuts the listening socket, unblocking Serve.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
