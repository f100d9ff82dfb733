// ABOUTME: Tests for configuration loading and validation.
// ABOUTME: Covers YAML loading, env expansion, defaults, and fail-fast checks.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "astrond.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	dcFile := writeFile(t, dir, "game.dc")

	configPath := writeConfig(t, `
general:
  dc_files:
    - "`+dcFile+`"

clientagent:
  bind: "127.0.0.1:7198"
  version: "prod-1.4"
  channels:
    min: 1000
    max: 1999
  client:
    type: "libastron"
    heartbeat_timeout: "30s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ClientAgent.Bind != "127.0.0.1:7198" {
		t.Errorf("Bind = %q, want %q", cfg.ClientAgent.Bind, "127.0.0.1:7198")
	}
	if cfg.ClientAgent.Version != "prod-1.4" {
		t.Errorf("Version = %q, want %q", cfg.ClientAgent.Version, "prod-1.4")
	}
	if cfg.ClientAgent.Channels.Min != 1000 || cfg.ClientAgent.Channels.Max != 1999 {
		t.Errorf("Channels = [%d, %d], want [1000, 1999]",
			cfg.ClientAgent.Channels.Min, cfg.ClientAgent.Channels.Max)
	}
	if cfg.ClientAgent.Client.Type != "libastron" {
		t.Errorf("Client.Type = %q, want %q", cfg.ClientAgent.Client.Type, "libastron")
	}
	if cfg.ClientAgent.Client.HeartbeatTimeout != 30*time.Second {
		t.Errorf("HeartbeatTimeout = %v, want 30s", cfg.ClientAgent.Client.HeartbeatTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %q/%q, want debug/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
clientagent:
  manual_dc_hash: 42
  channels:
    min: 1000
    max: 1999
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ClientAgent.Bind != "0.0.0.0:7198" {
		t.Errorf("default Bind = %q, want %q", cfg.ClientAgent.Bind, "0.0.0.0:7198")
	}
	if cfg.ClientAgent.Version != "dev" {
		t.Errorf("default Version = %q, want %q", cfg.ClientAgent.Version, "dev")
	}
	if cfg.ClientAgent.Client.Type != "libastron" {
		t.Errorf("default Client.Type = %q, want %q", cfg.ClientAgent.Client.Type, "libastron")
	}
	if cfg.ClientAgent.TLS.TLSv12 == nil || !*cfg.ClientAgent.TLS.TLSv12 {
		t.Error("default TLSv12 should be enabled")
	}
	if cfg.ClientAgent.TLS.TLSv10 || cfg.ClientAgent.TLS.TLSv11 {
		t.Error("legacy TLS versions should default to disabled")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CA_BIND", "127.0.0.1:9900")

	configPath := writeConfig(t, `
clientagent:
  bind: "${TEST_CA_BIND}"
  manual_dc_hash: 42
  channels:
    min: 1000
    max: 1999
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClientAgent.Bind != "127.0.0.1:9900" {
		t.Errorf("Bind = %q, want expanded env value", cfg.ClientAgent.Bind)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/astrond.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
clientagent:
  bind "missing colon"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
clientagent:
  manual_dc_hash: 42
  channels:
    min: 1000
    max: 1999
  client:
    heartbeat_timeout: "not-a-duration"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	certFile := writeFile(t, dir, "server.crt")
	keyFile := writeFile(t, dir, "server.key")
	chainFile := writeFile(t, dir, "chain.pem")

	base := func() Config {
		return Config{
			ClientAgent: ClientAgentConfig{
				Bind:         "0.0.0.0:7198",
				ManualDCHash: 42,
				Channels:     ChannelsConfig{Min: 1000, Max: 1999},
			},
		}
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{
			name:   "valid plaintext",
			mutate: func(c *Config) {},
		},
		{
			name: "valid tls",
			mutate: func(c *Config) {
				c.ClientAgent.TLS.Certificate = certFile
				c.ClientAgent.TLS.KeyFile = keyFile
				c.ClientAgent.TLS.ChainFile = chainFile
			},
		},
		{
			name:          "invalid bind address",
			mutate:        func(c *Config) { c.ClientAgent.Bind = "no-port-here" },
			wantErrSubstr: "not a valid host:port",
		},
		{
			name:          "missing channel min",
			mutate:        func(c *Config) { c.ClientAgent.Channels.Min = 0 },
			wantErrSubstr: "channels.min is required",
		},
		{
			name:          "missing channel max",
			mutate:        func(c *Config) { c.ClientAgent.Channels.Max = 0 },
			wantErrSubstr: "channels.max is required",
		},
		{
			name:          "reserved channel min",
			mutate:        func(c *Config) { c.ClientAgent.Channels.Min = 500 },
			wantErrSubstr: "reserved range",
		},
		{
			name: "min greater than max",
			mutate: func(c *Config) {
				c.ClientAgent.Channels.Min = 2000
				c.ClientAgent.Channels.Max = 1000
			},
			wantErrSubstr: "greater than max",
		},
		{
			name:          "certificate without key",
			mutate:        func(c *Config) { c.ClientAgent.TLS.Certificate = certFile },
			wantErrSubstr: "must be set together",
		},
		{
			name:          "key without certificate",
			mutate:        func(c *Config) { c.ClientAgent.TLS.KeyFile = keyFile },
			wantErrSubstr: "must be set together",
		},
		{
			name:          "chain without certificate",
			mutate:        func(c *Config) { c.ClientAgent.TLS.ChainFile = chainFile },
			wantErrSubstr: "requires clientagent.tls.certificate",
		},
		{
			name: "missing certificate file",
			mutate: func(c *Config) {
				c.ClientAgent.TLS.Certificate = filepath.Join(dir, "missing.crt")
				c.ClientAgent.TLS.KeyFile = keyFile
			},
			wantErrSubstr: "tls.certificate",
		},
		{
			name: "dc files required without manual hash",
			mutate: func(c *Config) {
				c.ClientAgent.ManualDCHash = 0
				c.General.DCFiles = nil
			},
			wantErrSubstr: "dc_files is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single env var", "${FOO}", "bar"},
		{"surrounding text", "prefix-${FOO}-suffix", "prefix-bar-suffix"},
		{"no env vars", "no-vars-here", "no-vars-here"},
		{"unset env var", "${UNSET_VAR_FOR_TEST}", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
