// ABOUTME: Plaintext and TLS-terminated connection acceptors.
// ABOUTME: Binds once at startup and hands accepted connections to a handler.

// Package listener accepts client connections, optionally terminating TLS.
//
// The variant (plaintext or TLS) is chosen once, at startup. Binding is the
// only operation allowed to fail fatally; after that the accept loop hands
// every live connection to the registered handler and keeps running until its
// context is cancelled.
package listener
