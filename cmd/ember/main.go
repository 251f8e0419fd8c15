// ABOUTME: CLI entry point for ember, a terminal client for the agent gateway.
// ABOUTME: Wires config, logging, deduplication, streaming, and local history together.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/emberhq/ember/internal/auth"
	"github.com/emberhq/ember/internal/client"
	"github.com/emberhq/ember/internal/config"
	"github.com/emberhq/ember/internal/dedupe"
	"github.com/emberhq/ember/internal/history"
	"github.com/emberhq/ember/internal/stream"
	"github.com/emberhq/ember/internal/task"
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `ember - terminal client for the agent gateway

Usage:
  ember [chat]      Start an interactive chat session (default)
  ember agents      List connected agents
  ember health      Check gateway connectivity
  ember init        Write a default config file
  ember version     Print version

Flags (chat):
  -server URL       Gateway URL (overrides config)
  -profile NAME     Connection profile from profiles.toml
  -thread ID        Resume an existing thread
  -agent ID         Pin all messages to one agent
`)
}

func main() {
	cmd := "chat"
	args := os.Args[1:]
	if len(args) > 0 && args[0][0] != '-' {
		cmd = args[0]
		args = args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args)
	case "agents":
		err = runAgents(ctx)
	case "health":
		err = runHealth(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Printf("ember %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configDir returns the base directory for ember's config files.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ember")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "ember"
	}
	return filepath.Join(home, ".config", "ember")
}

func getConfigPath() string {
	if path := os.Getenv("EMBER_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(configDir(), "config.yaml")
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

	// Logs go to stderr so they never interleave with streamed output.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// app holds the wired-up pieces of a running session.
type app struct {
	cfg     *config.Config
	profile config.Profile
	logger  *slog.Logger
	dedupe  *dedupe.Manager
	client  *client.Client
	handler *stream.Handler
	poller  *task.Poller
	store   *history.Store // nil when local history is disabled
}

// newApp builds the full dependency graph from config, flags, and environment.
func newApp(serverOverride, profileName string) (*app, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	profiles, err := config.LoadProfiles(filepath.Join(configDir(), "profiles.toml"))
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	profile, err := profiles.Resolve(profileName)
	if err != nil {
		return nil, err
	}

	serverURL := cfg.Server.URL
	if profile.URL != "" {
		serverURL = profile.URL
	}
	if serverOverride != "" {
		serverURL = serverOverride
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	token := auth.LoadToken()
	if profile.TokenFile != "" {
		data, err := os.ReadFile(profile.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading profile token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token != "" {
		if id, err := auth.Inspect(token); err != nil {
			logger.Warn("auth token problem", "error", err, "subject", id.Subject)
		} else if id.Subject != "" {
			logger.Debug("authenticated", "subject", id.Subject)
		}
	}

	mgr := dedupe.NewManager(dedupe.Options{
		TTL:             cfg.Dedupe.TTL,
		CleanupInterval: cfg.Dedupe.CleanupInterval,
		StaleAfter:      cfg.Dedupe.StaleAfter,
		DisableCache:    cfg.Dedupe.DisableCache,
		Logger:          logger,
	})

	c := client.New(client.Options{
		BaseURL: serverURL,
		Token:   token,
		Sender:  cfg.Server.Sender,
		Dedupe:  mgr,
		Logger:  logger.With("component", "client"),
	})

	terminal := stream.NewTerminal(os.Stdout, stream.TerminalOptions{
		MaxPreview: cfg.Stream.MaxPreview,
		NoColor:    cfg.Stream.NoColor,
	})
	handler := stream.NewHandler(terminal, stream.Options{
		Throttle:     cfg.Stream.Throttle,
		HidePartials: cfg.Stream.HidePartials,
		Logger:       logger.With("component", "stream"),
	})

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			// History is an offline convenience, not a prerequisite.
			logger.Warn("local history unavailable", "error", err)
		}
	}

	return &app{
		cfg:     cfg,
		profile: profile,
		logger:  logger,
		dedupe:  mgr,
		client:  c,
		handler: handler,
		poller:  task.NewPoller(cfg.Task.PollInterval, logger.With("component", "task")),
		store:   store,
	}, nil
}

func (a *app) close() {
	a.handler.Close()
	a.dedupe.Close()
	if a.store != nil {
		a.store.Close()
	}
}

func runAgents(ctx context.Context) error {
	a, err := newApp("", "")
	if err != nil {
		return err
	}
	defer a.close()

	agents, err := a.client.Agents(ctx)
	if err != nil {
		return err
	}
	printAgents(agents)
	return nil
}

func runHealth(ctx context.Context) error {
	a, err := newApp("", "")
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.client.Health(ctx); err != nil {
		return err
	}
	color.New(color.FgGreen).Println("Gateway is healthy")
	return nil
}

// runInit writes a commented default config file, refusing to overwrite one.
func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

const defaultConfigYAML = `# ember configuration
server:
  url: "http://localhost:8080"
  sender: "ember"

# Request deduplication for read calls (agents, history, task state).
dedupe:
  ttl: "60s"
  cleanup_interval: "60s"
  stale_after: "5m"
  disable_cache: false

# Terminal streaming behavior.
stream:
  throttle: "100ms"
  hide_partials: false
  max_preview: 400
  no_color: false

task:
  poll_interval: "500ms"

# Local transcript mirror; leave empty to disable.
history:
  path: ""

logging:
  level: "info"
  format: "text"
`
