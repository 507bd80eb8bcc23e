// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"log/slog"
	"math/rand"

	"github.com/lumeaudio/segue/internal/adapter/eventbus"
	"github.com/lumeaudio/segue/internal/fade"
	"github.com/lumeaudio/segue/internal/logger"
	"github.com/lumeaudio/segue/internal/metrics"
	"github.com/lumeaudio/segue/internal/ports"
	"github.com/lumeaudio/segue/internal/registry"
	"github.com/lumeaudio/segue/internal/service"
)

// Application is the root structure that holds the wired orchestration layer.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all services
// - Managing the lifecycle (startup, shutdown)
// - Providing a clean entry point for the embedding host
type Application struct {
	logger *slog.Logger

	// Infrastructure
	eventBus  ports.EventBus
	ownsBus   bool
	clock     ports.Clock
	source    ports.SoundSource
	registry  *registry.Registry
	fader     *fade.Engine
	collector *metrics.Collector

	// Services
	configService    *service.ConfigService
	loopService      *service.LoopService
	crossfadeService *service.CrossfadeService
	silenceService   *service.SilenceService
	shuffleService   *service.ShuffleService
}

// Config holds application configuration.
type Config struct {
	// LogLevel controls logging verbosity
	LogLevel slog.Level

	// AssetDir is where generated silence assets are written ("" for the
	// system temp directory)
	AssetDir string

	// RandSeed pins the shuffle random source (0 seeds from the clock)
	RandSeed int64
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	loggerCfg := logger.DefaultConfig()
	return Config{
		LogLevel: loggerCfg.Level,
	}
}

// Dependencies are the host-provided ports the layer runs against.
type Dependencies struct {
	// Bus carries domain events. When nil the application creates its own;
	// hosts that publish track lifecycle events pass theirs in
	Bus ports.EventBus

	// Clock schedules wall-time callbacks
	Clock ports.Clock

	// Source manufactures sound handles for tracks
	Source ports.SoundSource

	// Authority reports whether this client may issue replicated commands
	Authority ports.Authority

	// Replicator carries sequenced loop commands between clients
	Replicator ports.Replicator
}

// NewApplication creates a new application with all services wired.
// This is the main dependency injection function.
func NewApplication(config Config, deps Dependencies) (*Application, error) {
	app := &Application{
		clock:  deps.Clock,
		source: deps.Source,
	}

	// Step 1: Create logger
	loggerCfg := logger.Config{
		Level:  config.LogLevel,
		Format: "text",
	}
	app.logger = logger.NewLogger(loggerCfg)
	app.logger.Info("initializing segue layer", slog.String("version", Version))

	// Step 2: Create or adopt the event bus
	if deps.Bus != nil {
		app.eventBus = deps.Bus
	} else {
		syncBus := eventbus.NewSyncEventBus()
		syncBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))
		app.eventBus = syncBus
		app.ownsBus = true
	}

	// Step 3: Create shared infrastructure
	app.registry = registry.New(
		app.logger.With(slog.String("component", "registry")),
		app.clock,
		app.eventBus,
	)
	app.fader = fade.NewEngine(
		app.logger.With(slog.String("component", "fade")),
		app.clock,
	)
	app.collector = metrics.NewCollector(app.eventBus)

	// Step 4: Create services (with dependency injection)
	app.configService = service.NewConfigService(
		app.logger.With(slog.String("service", "config")),
	)

	seed := config.RandSeed
	if seed == 0 {
		seed = app.clock.Now().UnixNano()
	}
	app.shuffleService = service.NewShuffleService(
		app.logger.With(slog.String("service", "shuffle")),
		app.registry,
		app.configService,
		rand.New(rand.NewSource(seed)),
	)

	app.silenceService = service.NewSilenceService(
		app.logger.With(slog.String("service", "silence")),
		app.clock,
		app.eventBus,
		app.registry,
		app.configService,
		config.AssetDir,
	)

	app.crossfadeService = service.NewCrossfadeService(
		app.logger.With(slog.String("service", "crossfade")),
		app.clock,
		app.eventBus,
		app.fader,
		app.registry,
		app.configService,
		app.shuffleService,
		app.silenceService,
	)

	app.loopService = service.NewLoopService(
		app.logger.With(slog.String("service", "loop")),
		app.clock,
		app.eventBus,
		app.fader,
		app.source,
		app.registry,
		app.configService,
		deps.Authority,
		deps.Replicator,
	)

	// Step 5: Let loopers that own their track's ending hand the transition
	// over to the playlist layer.
	app.loopService.SetTrackEndingHandler(func(track ports.Track) {
		if err := app.crossfadeService.CrossfadeToNext(track.Playlist()); err != nil {
			app.logger.Warn("transition after loop completion failed",
				slog.String("track", track.ID()), slog.Any("error", err))
		}
	})

	return app, nil
}

// HandleTrackStarted is the single entry point the embedding host calls when
// a track begins playing: it schedules the track's looper when configured,
// and otherwise arms the playlist-level transition.
func (a *Application) HandleTrackStarted(track ports.Track) {
	if err := a.loopService.Schedule(track); err != nil {
		a.logger.Warn("loop scheduling failed",
			slog.String("track", track.ID()), slog.Any("error", err))
	}
	if err := a.crossfadeService.Arm(track.Playlist()); err != nil {
		a.logger.Warn("transition arming failed",
			slog.String("track", track.ID()), slog.Any("error", err))
	}
}

// HandlePlaylistStopped tears down every runtime entry the playlist holds.
func (a *Application) HandlePlaylistStopped(playlistID string) {
	a.registry.SetStopping(playlistID, true)
	a.registry.CleanupPlaylist(playlistID)
	a.registry.SetStopping(playlistID, false)
}

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// EventBus exposes the bus for host-side subscribers.
func (a *Application) EventBus() ports.EventBus {
	return a.eventBus
}

// Registry exposes the runtime state registry.
func (a *Application) Registry() *registry.Registry {
	return a.registry
}

// Metrics exposes the playback metrics collector.
func (a *Application) Metrics() *metrics.Collector {
	return a.collector
}

// Loops exposes the loop lifecycle service.
func (a *Application) Loops() *service.LoopService {
	return a.loopService
}

// Crossfades exposes the playlist transition service.
func (a *Application) Crossfades() *service.CrossfadeService {
	return a.crossfadeService
}

// Silences exposes the silence injection service.
func (a *Application) Silences() *service.SilenceService {
	return a.silenceService
}

// Shuffles exposes the shuffle ordering service.
func (a *Application) Shuffles() *service.ShuffleService {
	return a.shuffleService
}

// Config exposes the flag-validation service.
func (a *Application) Config() *service.ConfigService {
	return a.configService
}

// Shutdown gracefully shuts down the application.
// This should be called via deferring in main.go.
func (a *Application) Shutdown() {
	a.logger.Info("shutting down segue layer")

	// Shutdown services (in reverse order of creation)
	if a.loopService != nil {
		a.loopService.Close()
	}
	if a.collector != nil {
		a.collector.Close()
	}

	if bus, ok := a.eventBus.(*eventbus.SyncEventBus); ok && a.ownsBus {
		if err := bus.Close(); err != nil {
			a.logger.Warn("failed to close event bus", slog.Any("error", err))
		}
	}

	a.logger.Info("segue layer shutdown complete")
}
