// ABOUTME: Entry point for the client agent daemon.
// ABOUTME: Accepts untrusted client connections and admits them to the bus.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/LoopyAshy/Astron/internal/bus"
	"github.com/LoopyAshy/Astron/internal/client"
	"github.com/LoopyAshy/Astron/internal/clientagent"
	"github.com/LoopyAshy/Astron/internal/config"
	"github.com/LoopyAshy/Astron/internal/schema"
)

// Version is set at build time.
var version = "dev"

const banner = `
           _
  __ _ ___| |_ _ __ ___  _ __
 / _' / __| __| '__/ _ \| '_ \
| (_| \__ \ |_| | | (_) | | | |
 \__,_|___/\__|_|  \___/|_| |_|
`

// getConfigPath returns the path to the daemon config file.
// Priority: explicit argument > ASTRON_CONFIG env var > ./astrond.yaml
func getConfigPath() string {
	if len(os.Args) > 2 {
		return os.Args[2]
	}
	if envPath := os.Getenv("ASTRON_CONFIG"); envPath != "" {
		return envPath
	}
	return "astrond.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: clientagent <command> [config]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve [config]   Start the client agent")
		fmt.Println("  check [config]   Validate configuration without binding")
		fmt.Println("  init [config]    Write a starter config file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "check":
		err = runCheck()
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    client agent, version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Bind:    %s\n", cfg.ClientAgent.Bind)
	green.Print("    ▶ ")
	fmt.Printf("Backend: %s\n", cfg.ClientAgent.Client.Type)
	fmt.Println()

	def, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	registry := client.NewDefaultRegistry(logger.With("component", "registry"))
	mbus := bus.New(logger)
	defer mbus.Close()

	agent, err := clientagent.New(cfg.ClientAgent, registry, mbus, def, logger)
	if err != nil {
		return fmt.Errorf("creating client agent: %w", err)
	}

	return agent.Run(ctx)
}

// loadSchema loads the dc files unless a manual hash makes them unnecessary.
func loadSchema(cfg *config.Config) (*schema.Definition, error) {
	if cfg.ClientAgent.ManualDCHash > 0 {
		return nil, nil
	}
	def, err := schema.LoadFiles(cfg.General.DCFiles)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return def, nil
}

func runCheck() error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry := client.NewDefaultRegistry(slog.Default())
	if !registry.Has(cfg.ClientAgent.Client.Type) {
		return fmt.Errorf("no client handler registered for type %q", cfg.ClientAgent.Client.Type)
	}

	if cfg.ClientAgent.ManualDCHash > 0 {
		fmt.Printf("dc hash (manual): %#x\n", cfg.ClientAgent.ManualDCHash)
	} else {
		def, err := schema.LoadFiles(cfg.General.DCFiles)
		if err != nil {
			return fmt.Errorf("loading schema: %w", err)
		}
		fmt.Printf("dc hash (computed): %#x\n", def.Hash())
	}

	fmt.Println("configuration ok")
	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	configContent := `# astron client agent configuration
# Generated by clientagent init

general:
  dc_files:
    - "game.dc"

clientagent:
  bind: "0.0.0.0:7198"
  version: "dev"

  # TLS is strongly recommended for production. Leaving certificate and
  # key_file empty accepts plaintext connections.
  tls:
    certificate: ""
    key_file: ""
    chain_file: ""

  channels:
    min: 1000
    max: 999999

  client:
    type: "libastron"
    heartbeat_timeout: "0s"

logging:
  level: "info"
  format: "text"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Config written to %s\n", configPath)
	fmt.Println("\nTo start the agent:")
	fmt.Println("  clientagent serve")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
			out:   os.Stdout,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Group names qualify attribute keys, dot-separated.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

// qualify prefixes an attribute key with the handler's open groups.
func (h *colorHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + h.qualify(a.Key) + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(h.out, buf.String())
	return nil
}

// WithAttrs qualifies the new attrs with the groups open at attach time; the
// stored keys are already fully qualified when Handle renders them.
func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		newAttrs = append(newAttrs, a)
	}
	return &colorHandler{
		level:  h.level,
		out:    h.out,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		out:    h.out,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
