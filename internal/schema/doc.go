// ABOUTME: Shared object/field schema loading and fingerprinting.
// ABOUTME: Produces the 32-bit hash used to reject incompatible clients.

// Package schema loads the distributed class files the cluster was configured
// with and computes a deterministic 32-bit fingerprint over them. Sessions
// compare this fingerprint against the one presented by connecting clients.
package schema
