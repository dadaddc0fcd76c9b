package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	charmlog "github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/techox/unotable/internal/auth"
	"github.com/techox/unotable/internal/server"
	"github.com/techox/unotable/internal/session"
	"github.com/techox/unotable/internal/store"
)

var CLI struct {
	Config string `short:"c" default:"unotable.hcl" help:"Path to HCL configuration file"`
	Addr   string `short:"a" help:"Listen address override (host:port)"`
	Debug  bool   `short:"d" help:"Enable debug logging"`
}

// SetupLogger configures zerolog with pretty console output
func SetupLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("unotable"),
		kong.Description("Real-time UNO match and room session server"),
		kong.UsageOnError(),
	)

	cfg, err := server.LoadServerConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	// Apply command line overrides
	if CLI.Debug {
		cfg.Server.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	debug := cfg.Server.LogLevel == "debug"
	logger := SetupLogger(debug)

	// The websocket transport logs through charmbracelet, everything else
	// through zerolog.
	transportLogger := charmlog.New(os.Stderr)
	if debug {
		transportLogger.SetLevel(charmlog.DebugLevel)
	}

	addr := cfg.GetServerAddress()
	if CLI.Addr != "" {
		addr = CLI.Addr
	}

	clock := quartz.NewReal()
	st := store.New(cfg.StoreConfig(), clock, logger)
	registry := session.NewRegistry(logger)
	broadcaster := server.NewBroadcaster(registry, clock, logger)

	directory := server.NewMemoryDirectory()
	for _, room := range cfg.Rooms {
		directory.Put(server.Room{
			ID:         room.ID,
			Name:       room.Name,
			Game:       room.Game,
			OwnerID:    room.OwnerID,
			MaxPlayers: room.MaxPlayers,
		})
	}

	service := server.NewGameService(st, registry, directory, broadcaster, clock, logger)

	if cfg.Server.DeckCatalog != "" {
		entries, err := server.LoadDeckCatalog(cfg.Server.DeckCatalog)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Server.DeckCatalog).Msg("failed to load deck catalog")
		}
		service.SetDeckCatalog(entries)
		logger.Info().Int("entries", len(entries)).Msg("loaded external deck catalog")
	}

	var verifier auth.Verifier
	switch cfg.Auth.Mode {
	case "http":
		verifier = auth.NewHTTPVerifier(cfg.Auth.URL, cfg.Auth.Secret)
		logger.Info().Str("url", cfg.Auth.URL).Msg("verifying tokens against identity service")
	default:
		verifier = auth.NewDevVerifier()
		logger.Warn().Msg("dev auth mode, tokens are not verified")
	}

	router := server.NewRouter(verifier, registry, service, clock, logger)
	srv := server.NewServer(addr, router, st, transportLogger)

	logger.Info().
		Str("addr", addr).
		Int("rooms", len(cfg.Rooms)).
		Str("auth_mode", cfg.Auth.Mode).
		Msg("starting unotable server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return st.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("shutdown complete")
}
