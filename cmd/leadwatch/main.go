// ABOUTME: Entry point for the leadwatch operator console
// ABOUTME: Subcommands: console (terminal UI), web (local web UI), health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leadwatch/leadwatch/internal/api"
	"github.com/leadwatch/leadwatch/internal/config"
	"github.com/leadwatch/leadwatch/internal/console"
	"github.com/leadwatch/leadwatch/internal/webui"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                _               _       _
| | ___  __ _  __| |_      ____ _| |_ ___| |__
| |/ _ \/ _' |/ _' \ \ /\ / / _' | __/ __| '_ \
| |  __/ (_| | (_| |\ V  V / (_| | || (__| | | |
|_|\___|\__,_|\__,_| \_/\_/ \__,_|\__\___|_| |_|
`

// getConfigPath returns the path to the leadwatch config file.
// Priority: LEADWATCH_CONFIG env var > XDG_CONFIG_HOME/leadwatch/leadwatch.yaml > ~/.config/leadwatch/leadwatch.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LEADWATCH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "leadwatch.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "leadwatch", "leadwatch.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: leadwatch <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  console    Interactive terminal console")
		fmt.Println("  web        Serve the local web UI")
		fmt.Println("  health     Check backend connectivity")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "console":
		err = runConsole(ctx)
	case "web":
		err = runWeb(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadSetup() (*config.Config, *api.Client, *prometheus.Registry, *slog.Logger, error) {
	configPath := getConfigPath()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	client := api.NewClient(api.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Logger:  logger,
		Metrics: api.NewMetrics(registry),
	})

	return cfg, client, registry, logger, nil
}

func runConsole(ctx context.Context) error {
	cfg, client, _, logger, err := loadSetup()
	if err != nil {
		return err
	}

	prefsPath, err := console.PrefsPath()
	if err != nil {
		prefsPath = ""
	}
	prefs := console.DefaultPrefs()
	if prefsPath != "" {
		prefs, err = console.LoadPrefs(prefsPath)
		if err != nil {
			return err
		}
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	c := console.New(cfg, client, prefs, prefsPath, logger)
	return c.Run(ctx)
}

func runWeb(ctx context.Context) error {
	cfg, client, registry, logger, err := loadSetup()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Backend: %s\n", client.BaseURL())
	green.Print("    ▶ ")
	fmt.Printf("Listen:  http://%s\n", cfg.Web.ListenAddr)
	fmt.Println()

	logger.Info("starting leadwatch web UI",
		"backend", client.BaseURL(),
		"listen_addr", cfg.Web.ListenAddr,
	)

	srv := webui.New(cfg, client, registry, logger)
	return srv.Serve(ctx)
}

func runHealth(ctx context.Context) error {
	_, client, _, _, err := loadSetup()
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := client.RecentConversations(checkCtx, 1); err != nil {
		fmt.Printf("Backend %s: ", client.BaseURL())
		color.New(color.FgRed).Println("UNREACHABLE")
		return err
	}

	fmt.Printf("Backend %s: ", client.BaseURL())
	color.New(color.FgGreen).Print("OK")
	fmt.Printf(" (%s)\n", time.Since(start).Round(time.Millisecond))
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
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
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
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
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
		attrs:  h.attrs,
		groups: newGroups,
	}
}
