// Package main provides the daybook HTTP service entry point.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/daybooklabs/daybook/internal/config"
	db "github.com/daybooklabs/daybook/internal/db/gorm"
	"github.com/daybooklabs/daybook/internal/server"
	"github.com/daybooklabs/daybook/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "HTTP listen port (default: from settings)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.daybook)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	// Ensure data directory and settings exist
	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	if *debug || cfg.LogLevel == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *port > 0 {
		cfg.Port = *port
	} else if envPort := config.GetPort(); envPort > 0 {
		cfg.Port = envPort
	}

	dbPath := cfg.DBPath
	if *dataDir != "" {
		dbPath = filepath.Join(*dataDir, "daybook.db")
	}

	store, err := db.NewStore(db.Config{
		Path:     dbPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	// The service re-reads cached settings per request; the watcher below
	// invalidates the cache when the file changes. Port and database
	// changes still need a restart, so the resolved port is pinned here.
	resolvedPort := cfg.Port
	settings := func() *config.Config {
		live := *config.Get()
		live.Port = resolvedPort
		return &live
	}
	svc := server.NewService(store, settings, Version)

	settingsWatcher, err := watcher.New(config.SettingsPath(), config.Reset)
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	} else {
		if err := settingsWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start settings watcher")
		}
		defer settingsWatcher.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		svc.Stop()
	}()

	log.Info().Str("version", Version).Str("db", dbPath).Msg("Starting daybook")
	if err := svc.Run(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
