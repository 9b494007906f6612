// Command partyroom starts the party room server.
//
// It supports three modes:
//  1. default – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "validate" – checks track files and reports problems
//
// Flags control host/port, settings file, tracks directory, logging, and
// optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/partyroom/api"
	"github.com/wricardo/mcp-training/partyroom/game/config"
	"github.com/wricardo/mcp-training/partyroom/game/roadtrip"
	"github.com/wricardo/mcp-training/partyroom/lobby"
	"github.com/wricardo/mcp-training/partyroom/settings"
	"github.com/wricardo/mcp-training/partyroom/transport/mcp"
	"github.com/wricardo/mcp-training/partyroom/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Partyroom Server"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Every flag can also be set from the environment.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "partyroom",
		Usage:   "Room orchestration server for real-time multiplayer games",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP server port",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Settings file (defaults to ./partyroom.yaml when present)",
				Sources: cli.EnvVars("PARTYROOM_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "tracks-dir",
				Value:   "configs",
				Usage:   "Directory containing race track JSON files",
				Sources: cli.EnvVars("TRACKS_DIR", "CONFIG_DIR"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging with human-readable output",
				Sources: cli.EnvVars("DEBUG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runHTTPServer,
		Commands: []*cli.Command{
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioMCP,
			},
			{
				Name:      "validate",
				Usage:     "Validate track files",
				ArgsUsage: "[file.json|dir ...]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					paths := cmd.Args().Slice()
					if len(paths) == 0 {
						paths = []string{cmd.String("tracks-dir")}
					}
					if !validateTracks(os.Stdout, paths) {
						return cli.Exit("Some tracks have errors", 1)
					}
					return nil
				},
			},
		},
	}
}

// newLogger builds the root logger. Debug mode switches to console output at
// debug level unless a finer level is requested.
func newLogger(w io.Writer, debug bool, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if debug {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		if lvl > zerolog.DebugLevel {
			lvl = zerolog.DebugLevel
		}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func loggerFrom(cmd *cli.Command) (zerolog.Logger, error) {
	// stderr keeps stdout free for the MCP stdio protocol
	return newLogger(os.Stderr, cmd.Bool("debug"), cmd.String("log-level"))
}

// App is the wired server.
type App struct {
	Settings settings.Config
	Tracks   *config.Manager
	Hub      *websocket.Hub
	Lobby    *lobby.Manager
	API      *api.Server
	Log      zerolog.Logger
}

// newApp loads settings and tracks and wires the lobby to the websocket hub.
func newApp(configPath, tracksDir string, log zerolog.Logger) (*App, error) {
	cfg, err := settings.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	tracks, err := config.NewManager(tracksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create track manager: %w", err)
	}
	if cfg.Game.DefaultTrack != "" {
		if err := tracks.SetDefault(cfg.Game.DefaultTrack); err != nil {
			return nil, fmt.Errorf("default track %q: %w", cfg.Game.DefaultTrack, err)
		}
	}

	hub := websocket.NewHub(log)
	hub.SetAllowedOrigins(cfg.Server.AllowedOrigins)

	opts := cfg.LobbyOptions()
	opts.Logger = log.With().Str("component", "lobby").Logger()
	roadtrip.NewRules(tracks, tracks.Default(), cfg.Game.TowDelay, log).Apply(&opts)

	manager, err := lobby.NewManager(hub, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create lobby: %w", err)
	}
	hub.SetHandler(manager)

	log.Info().Str("default_track", tracks.Default()).Int("max_players", cfg.Lobby.MaxPlayers).
		Dur("tow_delay", cfg.Game.TowDelay).Msg("lobby ready")

	return &App{
		Settings: cfg,
		Tracks:   tracks,
		Hub:      hub,
		Lobby:    manager,
		API:      api.NewServer(manager, tracks, hub, log),
		Log:      log,
	}, nil
}

// Handler mounts the API at root and the MCP proxy at /mcp.
func (a *App) Handler(baseURL string) http.Handler {
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", a.API)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, cmd *cli.Command) error {
	log, err := loggerFrom(cmd)
	if err != nil {
		return err
	}
	log.Info().Str("version", Version).Msg("starting " + AppName)

	app, err := newApp(cmd.String("config"), cmd.String("tracks-dir"), log)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), int(cmd.Int("port")))
	handler := app.Handler(fmt.Sprintf("http://%s", addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  app.Settings.Server.ReadTimeout,
		WriteTimeout: app.Settings.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info().Str("addr", addr).
			Str("rest", fmt.Sprintf("http://%s/api", addr)).
			Str("websocket", fmt.Sprintf("ws://%s/ws", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, log, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-serveErr:
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	app.Hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info().Msg("server stopped")
	return runErr
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled.
func runNgrok(ctx context.Context, log zerolog.Logger, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	log.Info().Msg("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Info().Str("domain", domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Info().Str("url", ngrokURL).
		Str("rest", ngrokURL+"/api").
		Str("websocket", strings.Replace(ngrokURL, "https://", "wss://", 1)+"/ws").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server.
// It tries to reuse an external API at the configured host and port; if unavailable, it
// starts an internal HTTP API bound to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	log, err := loggerFrom(cmd)
	if err != nil {
		return err
	}

	externalURL := fmt.Sprintf("http://%s:%d", cmd.String("host"), int(cmd.Int("port")))
	log.Info().Str("url", externalURL).Msg("checking for external API server")

	baseURL := externalURL
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/api/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Info().Str("url", externalURL).Msg("external API server found, using it for MCP")
	} else {
		log.Info().Msg("no external API server found, starting internal HTTP server")

		app, err := newApp(cmd.String("config"), cmd.String("tracks-dir"), log)
		if err != nil {
			return err
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())

		httpServer := &http.Server{Handler: app.API}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer func() {
			app.Hub.Close()
			httpServer.Close()
		}()

		log.Info().Str("url", baseURL).Msg("internal HTTP server started for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// validateTracks checks every track file under paths (files or directories)
// and prints a report. It returns false if any track is invalid.
func validateTracks(w io.Writer, paths []string) bool {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(w, "❌ %s: %v\n", p, err)
			return false
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			fmt.Fprintf(w, "❌ %s: %v\n", p, err)
			return false
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "❌ No track files found")
		return false
	}

	allValid := true
	for _, file := range files {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), filepath.Base(file))

		track, err := config.LoadTrackFile(file)
		if err != nil {
			allValid = false
			fmt.Fprintln(w, "❌ INVALID")
			fmt.Fprintf(w, "  ❌ %v\n", err)
			continue
		}
		if unreachable := track.Unreachable(); len(unreachable) > 0 {
			allValid = false
			fmt.Fprintln(w, "❌ INVALID")
			fmt.Fprintf(w, "  ❌ Connectivity failure: %d/%d parks unreachable from home\n", len(unreachable), track.Parks())
			for _, p := range unreachable {
				fmt.Fprintf(w, "  ❌ Unreachable: Park at (%d,%d)\n", p.X, p.Y)
			}
			continue
		}

		fmt.Fprintln(w, "✅ VALID")
		fmt.Fprintf(w, "  %s: %dx%d grid, battery %d/%d, %d parks\n",
			track.Name, track.GridSize, track.GridSize, track.StartingBattery, track.MaxBattery, track.Parks())
		fmt.Fprintf(w, "  ✓ Connectivity: All %d parks reachable from home\n", track.Parks())
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All tracks are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some tracks have errors")
	}
	return allValid
}
