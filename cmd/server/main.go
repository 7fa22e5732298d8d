// Package main provides the jukebox server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/bramblewood/jukebox/internal/api/httpapi"
	"github.com/bramblewood/jukebox/internal/app/filter"
	"github.com/bramblewood/jukebox/internal/app/jukebox"
	"github.com/bramblewood/jukebox/internal/app/playback"
	"github.com/bramblewood/jukebox/internal/app/roster"
	"github.com/bramblewood/jukebox/internal/infra/audio"
	"github.com/bramblewood/jukebox/internal/infra/config"
	"github.com/bramblewood/jukebox/internal/infra/logger"
	"github.com/bramblewood/jukebox/internal/infra/resolver"
	"github.com/bramblewood/jukebox/internal/infra/stats"
)

var (
	app        = kingpin.New("jukebox-server", "Community jukebox server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := validateFilterConfig(cfg); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	// In preload mode stale media from a previous run is dead weight.
	if !cfg.Jukebox.StreamingEnabled {
		if err := clearMediaDir(cfg.Resolver.MediaDir); err != nil {
			return fmt.Errorf("failed to prepare media dir: %w", err)
		}
	}

	sink, err := stats.OpenSQLite(cfg.Stats.Path)
	if err != nil {
		return fmt.Errorf("failed to open stats db: %w", err)
	}
	defer sink.Close()

	audioSink, closeAudio, err := buildAudioSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up audio output: %w", err)
	}
	defer closeAudio()

	player := playback.NewPlayer(audioSink)
	res := resolver.NewYouTube(cfg.Resolver.MediaDir, cfg.Jukebox.StreamingEnabled)

	jb := jukebox.New(jukebox.Options{
		MultiqueueEnabled:    cfg.Jukebox.MultiqueueEnabled,
		LoopingAllowed:       cfg.Jukebox.LoopingAllowed,
		PausingAllowed:       cfg.Jukebox.PausingAllowed,
		VoteRatio:            cfg.Jukebox.VoteRatio,
		HookTimeout:          time.Duration(cfg.Jukebox.HookTimeoutSec) * time.Second,
		QueueLengthWarning:   cfg.Jukebox.QueueLengthWarning,
		QueueDurationWarning: time.Duration(cfg.Jukebox.QueueDurationWarningSec) * time.Second,
	}, player, audio.SourceOpener{}, res, sink, roster.New(), jukebox.Hooks{})
	defer jb.Close()

	jb.SetFilterChain(buildFilterChain(cfg, jb))

	handler := httpapi.New(jb, cfg, sink)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(handler.Routes(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jb.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// buildAudioSink returns the configured frame sink and its cleanup.
func buildAudioSink(cfg *config.Config) (playback.Sink, func(), error) {
	switch cfg.Audio.Output {
	case "speaker":
		s, err := audio.NewSpeakerSink(cfg.Audio.SampleRate)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return audio.DiscardSink{}, func() {}, nil
	}
}

// buildFilterChain assembles the submission filters from config. The
// duplicate filter is always on; configured filters validate their settings
// at startup.
func buildFilterChain(cfg *config.Config, jb *jukebox.Jukebox) *filter.Chain {
	chain := filter.NewChain()

	for name, factory := range filter.GetRegistered() {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := factory()
		// Settings were validated in validateFilterConfig.
		_ = f.ValidateConfig(cfg.FilterSettings(name))
		chain.Add(f)
		zlog.Info().Msgf("filter enabled: %s", name)
	}

	chain.Add(filter.NewDuplicateTrackFilter(jb))
	return chain
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			// Some filters are created with dependencies, skip validation
			continue
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return nil
}

// clearMediaDir wipes and recreates the preload cache.
func clearMediaDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
