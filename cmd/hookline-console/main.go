// ABOUTME: Entry point for the hookline-console server
// ABOUTME: Subcommands for serving, first-time setup, health checks, and ban imports

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/hookline/console/internal/config"
	"github.com/hookline/console/internal/server"
	"github.com/hookline/console/internal/store"
	"github.com/hookline/console/internal/webadmin"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                 _    _ _
| |__   ___   ___ | | _| (_)_ __   ___
| '_ \ / _ \ / _ \| |/ / | | '_ \ / _ \
| | | | (_) | (_) |   <| | | | | |  __/
|_| |_|\___/ \___/|_|\_\_|_|_| |_|\___|
`

// getConfigPath returns the path to the console config file.
// Priority: HOOKLINE_CONFIG env var > XDG_CONFIG_HOME/hookline/console.yaml > ~/.config/hookline/console.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HOOKLINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hookline", "console.yaml")
}

// getDataPath returns the path to the hookline data directory.
// Priority: XDG_DATA_HOME/hookline > ~/.local/share/hookline
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "hookline")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	case "bans":
		err = runBans(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: hookline-console <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  serve                  Start the console server")
	fmt.Println("  init                   Create a new config file interactively")
	fmt.Println("  bootstrap              First-time setup: config, database, admin invite")
	fmt.Println("  health                 Check console health")
	fmt.Println("  bans import <file>     Import ban rules from a TOML file")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HOOKLINE_CONFIG        Config file path (default: ~/.config/hookline/console.yaml)")
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Relay.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Relay:    ")
		cyan.Print(cfg.Relay.Address)
		fmt.Println()
	} else {
		gray.Println("    ▶ Relay:    disabled")
	}
	fmt.Println()

	logger.Info("starting hookline-console",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"relay_enabled", cfg.Relay.Enabled,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
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

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
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

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// banFile is the TOML layout for "bans import".
type banFile struct {
	Bans []banEntry `toml:"bans"`
}

type banEntry struct {
	Kind   string `toml:"kind"`
	Value  string `toml:"value"`
	Reason string `toml:"reason"`
}

// runBans handles the "bans import <file.toml>" subcommand. Rules that
// already exist are skipped, not treated as errors.
func runBans(ctx context.Context, args []string) error {
	if len(args) < 2 || args[0] != "import" {
		return fmt.Errorf("usage: hookline-console bans import <file.toml>")
	}
	path := args[1]

	var file banFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Bans) == 0 {
		return fmt.Errorf("no ban rules found in %s", path)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	var imported, skipped int
	for i, entry := range file.Bans {
		switch entry.Kind {
		case store.BanKindIP, store.BanKindEndpoint, store.BanKindEventType:
		default:
			return fmt.Errorf("bans[%d]: invalid kind %q (want ip, endpoint, or event_type)", i, entry.Kind)
		}
		if entry.Value == "" {
			return fmt.Errorf("bans[%d]: value is required", i)
		}

		rule := &store.BanRule{
			Kind:   entry.Kind,
			Value:  entry.Value,
			Reason: entry.Reason,
		}
		if err := s.CreateBanRule(ctx, rule); err != nil {
			if errors.Is(err, store.ErrBanExists) {
				yellow.Printf("  - skipped (exists): %s %s\n", entry.Kind, entry.Value)
				skipped++
				continue
			}
			return fmt.Errorf("bans[%d]: %w", i, err)
		}
		green.Printf("  ✓ imported: %s %s\n", entry.Kind, entry.Value)
		imported++
	}

	fmt.Printf("\n%d imported, %d skipped\n", imported, skipped)
	return nil
}

// runBootstrap performs first-time setup of the console:
// 1. Creates config file with random JWT secret (if not exists)
// 2. Creates the database
// 3. Generates a bootstrap admin invite link
//
// This is a one-command setup: hookline-console bootstrap
func runBootstrap(ctx context.Context) error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "console.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	var cfg *config.Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# hookline-console configuration
# Generated by hookline-console bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

relay:
  address: ""
  reconnect_interval: "5s"
  max_reconnect_attempts: 5
  enabled: false

auth:
  jwt_secret: "%s"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	// Refuse to re-bootstrap once an admin exists.
	count, err := s.CountAdminUsers(ctx)
	if err != nil {
		return fmt.Errorf("checking admin users: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d admin user(s) exist", count)
	}

	token := uuid.New().String()
	invite := &store.AdminInvite{
		ID:        token,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(webadmin.InviteDuration),
	}
	if err := s.CreateAdminInvite(ctx, invite); err != nil {
		return fmt.Errorf("creating admin invite: %w", err)
	}

	baseURL := cfg.WebAdmin.BaseURL
	inviteURL := baseURL + "/admin/invite/" + token

	green.Println("  ✓ Created admin invite")
	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Next steps")
	cyan.Println("  ----------")
	fmt.Println("    hookline-console serve    # start the console")
	fmt.Println()
	fmt.Printf("  Then open this invite link to create your admin account\n")
	fmt.Printf("  (valid until %s):\n\n", invite.ExpiresAt.Format("Jan 02, 2006 15:04"))
	yellow.Printf("    %s\n\n", inviteURL)

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("hookline-console configuration setup")
	fmt.Println("====================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "console.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Relay Configuration ---")
	relayAddr := prompt(reader, "Relay WebSocket address (leave empty to disable)", "")
	relayEnabled := relayAddr != ""

	var reconnectInterval, maxReconnects string
	if relayEnabled {
		reconnectInterval = prompt(reader, "Reconnect interval", "5s")
		maxReconnects = prompt(reader, "Max reconnect attempts", "5")
	}

	fmt.Println("\n--- Auth Configuration ---")
	jwtSecret := prompt(reader, "JWT secret (leave empty to generate)", "")
	if jwtSecret == "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
		fmt.Println("Generated a random JWT secret.")
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# hookline-console configuration\n")
	cfg.WriteString("# Generated by hookline-console init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("relay:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", relayEnabled))
	if relayEnabled {
		cfg.WriteString(fmt.Sprintf("  address: \"%s\"\n", relayAddr))
		cfg.WriteString(fmt.Sprintf("  reconnect_interval: \"%s\"\n", reconnectInterval))
		cfg.WriteString(fmt.Sprintf("  max_reconnect_attempts: %s\n", maxReconnects))
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  hookline-console serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
