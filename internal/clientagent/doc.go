// ABOUTME: The client agent role: owns the listener, tracker, and registry wiring.
// ABOUTME: Accepts untrusted client connections and admits them as sessions.

// Package clientagent orchestrates the client-facing gateway.
//
// The agent resolves its configuration once, builds a channel tracker over the
// validated range, fingerprints the schema, selects a plaintext or TLS
// listener, and wires every accepted connection to the session registry. It
// must come up fully correct or not at all: every construction and bind
// failure is fatal and reported to the operator before the process exits.
package clientagent
