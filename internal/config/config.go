// ABOUTME: Config structs, YAML loading, env expansion, and validation.
// ABOUTME: Validation is first-error style; every failure is fatal at startup.

package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LoopyAshy/Astron/internal/channels"
)

// Config represents the complete daemon configuration.
type Config struct {
	General     GeneralConfig     `yaml:"general"`
	ClientAgent ClientAgentConfig `yaml:"clientagent"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// GeneralConfig holds cluster-wide settings shared by every role.
type GeneralConfig struct {
	// DCFiles lists the dc schema files, in the order every process in the
	// cluster must agree on.
	DCFiles []string `yaml:"dc_files"`
}

// ClientAgentConfig holds the client agent role configuration.
type ClientAgentConfig struct {
	// Bind is the host:port the agent listens on for client connections.
	Bind string `yaml:"bind"`

	// Version is an opaque string echoed to clients during handshake.
	Version string `yaml:"version"`

	// ManualDCHash overrides the computed schema hash when greater than zero.
	ManualDCHash uint32 `yaml:"manual_dc_hash"`

	TLS      TLSConfig      `yaml:"tls"`
	Channels ChannelsConfig `yaml:"channels"`
	Client   ClientConfig   `yaml:"client"`
}

// TLSConfig holds TLS material paths and protocol version flags.
// Certificate and KeyFile must be set together; leaving both empty selects
// the plaintext listener.
type TLSConfig struct {
	Certificate string `yaml:"certificate"`
	KeyFile     string `yaml:"key_file"`
	ChainFile   string `yaml:"chain_file"`

	// Deprecated protocol versions are disabled unless explicitly enabled.
	TLSv10 bool `yaml:"tlsv1_0"`
	TLSv11 bool `yaml:"tlsv1_1"`

	// TLSv12 defaults to enabled; nil means unset.
	TLSv12 *bool `yaml:"tlsv1_2"`
}

// Enabled reports whether any TLS material is configured.
func (t TLSConfig) Enabled() bool {
	return t.Certificate != "" || t.KeyFile != ""
}

// ChannelsConfig bounds the allocatable channel address space.
type ChannelsConfig struct {
	Min channels.Channel `yaml:"min"`
	Max channels.Channel `yaml:"max"`
}

// ClientConfig selects and parameterizes the session backend.
type ClientConfig struct {
	// Type names a registered client handler.
	Type string `yaml:"type"`

	// HeartbeatTimeout is how long a session may stay silent before it is
	// dropped. Zero disables the idle deadline.
	HeartbeatTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling.
	HeartbeatTimeoutRaw string `yaml:"heartbeat_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed,
// validated Config. Environment variables in the format ${VAR_NAME} are
// expanded. Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for fields the file left unset.
func applyDefaults(cfg *Config) {
	if cfg.ClientAgent.Bind == "" {
		cfg.ClientAgent.Bind = "0.0.0.0:7198"
	}
	if cfg.ClientAgent.Version == "" {
		cfg.ClientAgent.Version = "dev"
	}
	if cfg.ClientAgent.Client.Type == "" {
		cfg.ClientAgent.Client.Type = "libastron"
	}
	if cfg.ClientAgent.TLS.TLSv12 == nil {
		enabled := true
		cfg.ClientAgent.TLS.TLSv12 = &enabled
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.ClientAgent.Client.HeartbeatTimeoutRaw != "" {
		cfg.ClientAgent.Client.HeartbeatTimeout, err = time.ParseDuration(cfg.ClientAgent.Client.HeartbeatTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_timeout %q: %w", cfg.ClientAgent.Client.HeartbeatTimeoutRaw, err)
		}
	}

	return nil
}

// Validate checks that the configuration describes an agent that can come up
// fully correct. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	ca := c.ClientAgent

	if _, _, err := net.SplitHostPort(ca.Bind); err != nil {
		return fmt.Errorf("clientagent.bind %q is not a valid host:port: %w", ca.Bind, err)
	}

	if err := validateChannels(ca.Channels); err != nil {
		return err
	}

	if err := validateTLS(ca.TLS); err != nil {
		return err
	}

	if ca.ManualDCHash == 0 && len(c.General.DCFiles) == 0 {
		return fmt.Errorf("general.dc_files is required when clientagent.manual_dc_hash is not set")
	}

	return nil
}

func validateChannels(cc ChannelsConfig) error {
	if cc.Min == channels.InvalidChannel {
		return fmt.Errorf("clientagent.channels.min is required")
	}
	if cc.Max == channels.InvalidChannel {
		return fmt.Errorf("clientagent.channels.max is required")
	}
	if channels.Reserved(cc.Min) {
		return fmt.Errorf("clientagent.channels.min %d is inside the reserved range [%d, %d]",
			cc.Min, channels.ReservedMin, channels.ReservedMax)
	}
	if channels.Reserved(cc.Max) {
		return fmt.Errorf("clientagent.channels.max %d is inside the reserved range [%d, %d]",
			cc.Max, channels.ReservedMin, channels.ReservedMax)
	}
	if cc.Min > cc.Max {
		return fmt.Errorf("clientagent.channels.min %d is greater than max %d", cc.Min, cc.Max)
	}
	return nil
}

func validateTLS(tc TLSConfig) error {
	if (tc.Certificate == "") != (tc.KeyFile == "") {
		return fmt.Errorf("clientagent.tls.certificate and clientagent.tls.key_file must be set together")
	}
	if tc.ChainFile != "" && tc.Certificate == "" {
		return fmt.Errorf("clientagent.tls.chain_file requires clientagent.tls.certificate")
	}

	for _, f := range []struct {
		key  string
		path string
	}{
		{"clientagent.tls.certificate", tc.Certificate},
		{"clientagent.tls.key_file", tc.KeyFile},
		{"clientagent.tls.chain_file", tc.ChainFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}

	return nil
}
