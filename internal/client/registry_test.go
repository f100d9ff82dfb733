// ABOUTME: Tests for the session backend registry.
// ABOUTME: Covers registration collisions, lookup, and instantiation failures.

package client

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoopyAshy/Astron/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopSession struct{}

func (nopSession) Close() error { return nil }

func nopConstructor(_ config.ClientConfig, _ Gateway, _ net.Conn, _ *slog.Logger) (Session, error) {
	return nopSession{}, nil
}

func TestRegistry_RegisterAndHas(t *testing.T) {
	r := NewRegistry(testLogger())

	require.NoError(t, r.Register("custom", nopConstructor))
	assert.True(t, r.Has("custom"))
	assert.False(t, r.Has("unknown"))
}

func TestRegistry_RegisterCollision(t *testing.T) {
	r := NewRegistry(testLogger())

	require.NoError(t, r.Register("custom", nopConstructor))
	err := r.Register("custom", nopConstructor)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientTypeRegistered)
}

func TestRegistry_InstantiateUnknownType(t *testing.T) {
	r := NewRegistry(testLogger())

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_, err := r.Instantiate("nope", config.ClientConfig{}, nil, server)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownClientType)
}

func TestRegistry_InstantiateConstructorFailure(t *testing.T) {
	r := NewRegistry(testLogger())
	ctorErr := errors.New("malformed initial bytes")
	require.NoError(t, r.Register("broken", func(_ config.ClientConfig, _ Gateway, _ net.Conn, _ *slog.Logger) (Session, error) {
		return nil, ctorErr
	}))

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_, err := r.Instantiate("broken", config.ClientConfig{}, nil, server)
	require.Error(t, err)
	assert.ErrorIs(t, err, ctorErr)
}

func TestNewDefaultRegistry_HasStockBackend(t *testing.T) {
	r := NewDefaultRegistry(testLogger())
	assert.True(t, r.Has("libastron"))
}
