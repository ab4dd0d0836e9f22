// Package main is the entry point for the playtimed daemon.
// playtimed is a headless audio playback daemon with scheduled-playback
// (alarm) support. Clients talk to it over a local IPC socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/eplaytime/playtimed/internal/audio"
	"github.com/eplaytime/playtimed/internal/catalog"
	"github.com/eplaytime/playtimed/internal/config"
	"github.com/eplaytime/playtimed/internal/controller"
	"github.com/eplaytime/playtimed/internal/ipc"
	"github.com/eplaytime/playtimed/internal/scheduler"
	"github.com/eplaytime/playtimed/internal/session"
	"github.com/eplaytime/playtimed/internal/store"
	"github.com/eplaytime/playtimed/internal/wake"
)

// Version is set at build time via ldflags
var Version = "dev"

// Config holds daemon configuration
type Config struct {
	SocketPath string
	ConfigDir  string
	Verbose    bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("playtimed version %s starting...", Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/playtimed)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = filepath.Join(homeDir, ".config", "playtimed")
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/playtimed-%d.sock", os.Getuid())
	}

	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	daemonCfg := configMgr.Get()

	// Durable store: schedule entries, playback snapshot, volume record
	db, err := store.Open(filepath.Join(configMgr.DataDir(), "playtime.db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	// Playback engine and session
	engine, err := audio.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize audio engine: %w", err)
	}
	if err := engine.SetVolume(daemonCfg.Audio.DefaultVolume); err != nil {
		log.Printf("Warning: failed to apply default volume: %v", err)
	}

	sess := session.New(engine)
	defer sess.Close()

	// Track catalog, loaded in the background so the daemon (and any alarm
	// fire) never waits on a slow library scan. The provider and filters are
	// rebuilt per scan so config changes apply without a restart.
	cat := catalog.New()
	scanLibrary := func() ([]catalog.Track, error) {
		current := configMgr.Get()
		provider := catalog.NewFSProvider(current.LibraryPaths)
		return provider.GetAllTracks(catalog.Filters{
			MinDurationMillis:     current.Library.MinDurationMillis,
			ExcludePathSubstrings: current.Library.ExcludePathSubstrings,
		})
	}

	// Scheduled playback: timers, trigger handler, boot recovery
	timers := scheduler.NewTimerService(ctx, daemonCfg.Alarm.ExactTimers)
	schedEngine := scheduler.NewEngine(timers)
	alarms := scheduler.NewHandler(db, sess, wake.NewGuard(), schedEngine)
	timers.SetOnTrigger(alarms.HandleTrigger)

	// A crash while an alarm held the volume override leaves the record
	// behind; put the volume back before anything else plays
	alarms.RecoverVolumeOverride()

	enabled, err := db.ListEnabledEntries()
	if err != nil {
		return fmt.Errorf("failed to load enabled entries: %w", err)
	}
	schedEngine.RescheduleAll(enabled)

	// Controller: attach-time reconciliation, position poll, snapshot writes
	ctrl := controller.New(sess, cat, db)

	rescan := func(rescanCtx context.Context) error {
		tracks, err := scanLibrary()
		if err != nil {
			return fmt.Errorf("library scan failed: %w", err)
		}
		cat.Replace(tracks)
		return ctrl.RefreshQueueFromCatalog(rescanCtx, true)
	}

	go func() {
		tracks, err := scanLibrary()
		if err != nil {
			log.Printf("Warning: initial library scan failed: %v", err)
			return
		}
		cat.Replace(tracks)
		log.Printf("Library scan complete: %d tracks", len(tracks))
		if err := ctrl.RefreshQueueFromCatalog(ctx, false); err != nil && ctx.Err() == nil {
			log.Printf("Warning: queue refresh failed: %v", err)
		}
	}()

	outcome, err := ctrl.Attach(ctx)
	if err != nil {
		return fmt.Errorf("controller attach failed: %w", err)
	}
	log.Printf("Controller attached: %s", outcome)
	defer ctrl.Close()

	server := ipc.NewServer(cfg.SocketPath, ctrl, sess, db, schedEngine, alarms, configMgr, rescan)

	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	// Restore any alarm volume override before the deferred controller
	// close writes the final playback snapshot
	alarms.RestorePriorVolume()

	return nil
}
