package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/blockbridge/internal/api"
	"github.com/mattjoyce/blockbridge/internal/audit"
	"github.com/mattjoyce/blockbridge/internal/auth"
	"github.com/mattjoyce/blockbridge/internal/backend"
	"github.com/mattjoyce/blockbridge/internal/blocks"
	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/config"
	"github.com/mattjoyce/blockbridge/internal/events"
	"github.com/mattjoyce/blockbridge/internal/lock"
	"github.com/mattjoyce/blockbridge/internal/log"
	"github.com/mattjoyce/blockbridge/internal/storage"
	"github.com/mattjoyce/blockbridge/internal/tui/watch"
	"github.com/mattjoyce/blockbridge/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func run(cmd string, args []string) int {
	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "blocks":
		return runBlocksNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "version":
		fmt.Printf("blockbridge version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `blockbridge - Dispatch bridge between block programs and a device

Usage:
  blockbridge <noun> <action> [flags]

Core Resources (Nouns):
  system    Bridge lifecycle
  config    Configuration validation
  blocks    Block catalogue

System Commands:
  system start        Start the bridge in foreground
  system watch        Live dispatch monitor (TUI)

Config Commands:
  config check        Validate configuration
  config show         Print the effective configuration

Blocks Commands:
  blocks list         List catalogue blocks
  blocks show <op>    Show a block's arguments and menus

General:
  start               Alias for 'system start'
  watch               Alias for 'system watch'
  version             Show version information
  help                Show this help message
`)
}

func isHelpToken(s string) bool {
	return s == "help" || s == "--help" || s == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printUsage(os.Stdout)
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "watch":
		return runWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: blockbridge config <check|show> [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runBlocksNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: blockbridge blocks <list|show> [flags]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "list":
		return runBlocksList(args[1:])
	case "show":
		return runBlocksShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown blocks action: %s\n", args[0])
		return 1
	}
}

// --- CONFIG ---

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, "", err
		}
		path = discovered
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output result as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	type result struct {
		Valid  bool     `json:"valid"`
		Path   string   `json:"path,omitempty"`
		Errors []string `json:"errors,omitempty"`
		Notes  []string `json:"notes,omitempty"`
	}

	cfg, path, err := loadConfig(*configPath)
	res := result{Valid: err == nil, Path: path}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	} else {
		if cfg.Webhooks != nil {
			if _, werr := webhook.FromGlobalConfig(cfg.Webhooks); werr != nil {
				res.Valid = false
				res.Errors = append(res.Errors, werr.Error())
			}
		}
		if pid, held := lock.Holder(cfg.Lock.Path); held {
			res.Notes = append(res.Notes, fmt.Sprintf("lock %s is held by pid %d", cfg.Lock.Path, pid))
		}
		if !cfg.API.Enabled {
			res.Notes = append(res.Notes, "api is disabled")
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	} else {
		if res.Valid {
			fmt.Printf("Configuration valid: %s\n", res.Path)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", e)
		}
		for _, n := range res.Notes {
			fmt.Printf("NOTE: %s\n", n)
		}
	}
	if !res.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	redact(cfg)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode config: %v\n", err)
		return 1
	}
	return 0
}

const redacted = "********"

func redact(cfg *config.Config) {
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = redacted
	}
	for i := range cfg.API.Auth.Tokens {
		cfg.API.Auth.Tokens[i].Token = redacted
	}
	for k := range cfg.Backend.Headers {
		cfg.Backend.Headers[k] = redacted
	}
	if cfg.Webhooks != nil {
		for i := range cfg.Webhooks.Endpoints {
			cfg.Webhooks.Endpoints[i].Secret = redacted
		}
	}
}

// --- BLOCKS ---

func runBlocksList(args []string) int {
	fs := flag.NewFlagSet("blocks list", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cat, err := blocks.Default()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalogue: %v\n", err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(cat.Blocks())
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPCODE\tEVENT\tPACE\tTEXT")
	for _, b := range cat.Blocks() {
		pace := "-"
		if b.Pace > 0 {
			pace = b.Pace.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Opcode, b.Event, pace, b.Text)
	}
	_ = tw.Flush()
	return 0
}

func runBlocksShow(args []string) int {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "Usage: blockbridge blocks show <opcode>")
		return 1
	}
	cat, err := blocks.Default()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalogue: %v\n", err)
		return 1
	}
	b, err := cat.Lookup(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Printf("%s  (%s)\n  %s\n", b.Opcode, b.Event, b.Text)
	for _, a := range b.Arguments {
		fmt.Printf("  - %s: %s default=%v", a.Name, a.Type, a.Default)
		if a.Menu != "" {
			items, _ := cat.Menu(a.Menu)
			values := make([]string, 0, len(items))
			for _, it := range items {
				values = append(values, fmt.Sprintf("%v", it.Value))
			}
			sort.Strings(values)
			fmt.Printf(" menu=%s [%s]", a.Menu, strings.Join(values, ", "))
		}
		fmt.Println()
	}
	return 0
}

// --- WATCH ---

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8090", "Base URL of the blockbridge API")
	apiKey := fs.String("key", os.Getenv(config.EnvPrefix+"API_KEY"), "Bearer token with events:ro")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "An API key is required (--key or $%sAPI_KEY)\n", config.EnvPrefix)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(watch.New(ctx, *apiURL, *apiKey), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		return 1
	}
	return 0
}

// --- START ---

type backendState struct {
	Kind      string `json:"kind"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("blockbridge starting", "version", version, "config", path)

	pidLock, err := lock.Acquire(cfg.Lock.Path)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Lock.Path, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := events.NewHub(cfg.Events.Buffer)
	br := bridge.New(
		bridge.WithClickWindow(cfg.Bridge.ClickWindow),
		bridge.WithLogger(log.WithComponent("bridge")),
		bridge.WithObserver(hub),
	)
	logger.Info("bridge ready", "click_window", br.ClickWindow())

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Audit.Path)
		if err != nil {
			logger.Error("failed to open audit database", "path", cfg.Audit.Path, "error", err)
			return 1
		}
		defer db.Close()

		auditStore = audit.NewStore(db)
		recorder := audit.NewRecorder(auditStore, cfg.Audit.Buffer)
		recorderDone := make(chan struct{})
		go func() {
			defer close(recorderDone)
			recorder.Run(ctx)
		}()
		// Drain before the deferred db.Close runs.
		defer func() {
			cancel()
			<-recorderDone
		}()
		br.AddObserver(recorder)
		logger.Info("audit log enabled", "path", cfg.Audit.Path)
	}

	handler, err := backend.New(cfg.Backend, backend.WithStateHook(func(connected bool, err error) {
		st := backendState{Kind: cfg.Backend.Kind, Connected: connected}
		typ := events.TypeBackendConnected
		if !connected {
			typ = events.TypeBackendLost
			if err != nil {
				st.Error = err.Error()
			}
		}
		hub.Publish(typ, st)
	}))
	if err != nil {
		logger.Error("failed to configure backend", "error", err)
		return 1
	}
	if ws, ok := handler.(*backend.WebSocket); ok {
		ws.Start(ctx)
	}
	br.SetCallback(handler)
	logger.Info("backend registered", "kind", handler.Kind())

	catalog, err := blocks.Default()
	if err != nil {
		logger.Error("failed to load block catalogue", "error", err)
		return 1
	}
	runner := blocks.NewRunner(catalog, br)

	errCh := make(chan error, 2)

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}
		deps := api.Deps{Runner: runner, Bridge: br, Backend: handler, Events: hub}
		if auditStore != nil {
			deps.Audit = auditStore
		}
		apiServer := api.New(api.Config{
			Listen:  cfg.API.Listen,
			APIKey:  cfg.API.Auth.APIKey,
			Tokens:  tokens,
			MaxWait: cfg.API.MaxWait,
		}, deps, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhooks)
		if err != nil {
			logger.Error("failed to configure webhooks", "error", err)
			return 1
		}
		webhookServer := webhook.New(webhookConfig, br, log.WithComponent("webhook"))
		go func() {
			if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("webhook: %w", err)
			}
		}()
		logger.Info("webhook server enabled", "listen", webhookConfig.Listen, "endpoints", len(webhookConfig.Endpoints))
	}

	logger.Info("blockbridge running (press Ctrl+C to stop)", "blocks", len(catalog.Blocks()))

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}
	cancel()

	logger.Info("blockbridge stopped")
	return code
}
