// ABOUTME: Configuration loading and validation for the client agent daemon.
// ABOUTME: YAML with env var expansion, duration parsing, and fail-fast checks.

// Package config loads and validates the daemon configuration.
//
// Configuration is YAML. ${VAR} references are expanded from the environment
// before parsing, duration fields are parsed from their raw string form, and
// Validate rejects any configuration the agent could not come up correctly
// with - the process must fail before a single port is bound.
package config
