// ABOUTME: Channel address space management for the client agent.
// ABOUTME: Defines the Channel type, reserved ranges, and the allocation Tracker.

// Package channels manages the bounded channel address space that client
// sessions are assigned from.
//
// A Channel is a unique numeric address identifying one session's endpoint on
// the internal message bus. Channel 0 is invalid, and a small prefix of the
// namespace is permanently reserved for system use (the agent's own control
// traffic lives there). The Tracker hands out channels from a configured
// [min, max] range, reusing released channels in FIFO order.
package channels
