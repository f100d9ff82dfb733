// ABOUTME: Client session construction and the registry of session backends.
// ABOUTME: Defines what a session may ask of the agent once admitted.

// Package client constructs per-connection session handlers.
//
// A session backend is registered under a type name and instantiated once per
// accepted connection. The backend owns the wire protocol spoken to its
// client: it performs the handshake, requests a channel from the agent, and
// relays datagrams between the connection and the message bus. The Gateway
// interface is the complete surface a session sees of the agent.
//
// The libastron backend in this package is the stock implementation.
package client
