// Command segue runs a scripted demo of the playback orchestration layer
// against the in-memory host and the mock audio engine. A real embedding
// implements the host ports against its own document model and audio stack,
// passes clock.NewSystem(), and calls Application.HandleTrackStarted from its
// playback hooks.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/lumeaudio/segue/internal/adapter/audio/mock"
	clockadapter "github.com/lumeaudio/segue/internal/adapter/clock"
	"github.com/lumeaudio/segue/internal/adapter/eventbus"
	"github.com/lumeaudio/segue/internal/adapter/host/memory"
	"github.com/lumeaudio/segue/internal/app"
	"github.com/lumeaudio/segue/internal/domain"
)

func main() {
	clk := clockadapter.NewVirtual(time.Unix(0, 0))
	bus := eventbus.NewSyncEventBus()
	source := mock.NewEngine(clk)
	source.SetDefaultDuration(time.Minute)
	host := memory.NewHost(bus, source)

	application, err := app.NewApplication(app.Config{
		LogLevel: slog.LevelWarn,
		RandSeed: 1,
	}, app.Dependencies{
		Bus:        bus,
		Clock:      clk,
		Source:     source,
		Authority:  host,
		Replicator: host,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer application.Shutdown()

	bus.SubscribeAll(func(e domain.Event) {
		fmt.Printf("%8s  %s\n", clk.Now().Sub(time.Unix(0, 0)), e.Type())
	})

	playlist := host.NewPlaylist("demo set")
	theme := playlist.AddTrack("main theme", 0.8)
	outro := playlist.AddTrack("outro", 0.7)

	if err := application.Config().StoreLoopConfig(theme, domain.LoopConfig{
		Enabled:            true,
		Active:             true,
		StartFromBeginning: true,
		Segments: []domain.Segment{{
			Start:     10 * time.Second,
			End:       40 * time.Second,
			Crossfade: time.Second,
			LoopCount: 2,
		}},
	}); err != nil {
		log.Fatal(err)
	}
	if err := application.Config().StoreSegueConfig(playlist, domain.SegueConfig{
		CrossfadeEnabled: true,
		Crossfade:        3 * time.Second,
	}); err != nil {
		log.Fatal(err)
	}

	if err := playlist.PlayTrack(theme); err != nil {
		log.Fatal(err)
	}
	application.HandleTrackStarted(theme)

	// Drive the virtual clock through the theme's two loop iterations, its
	// retirement, and the crossfade into the outro.
	for elapsed := time.Duration(0); elapsed < 4*time.Minute; elapsed += time.Second {
		clk.Advance(time.Second)
	}

	snapshot := application.Metrics().Snapshot()
	fmt.Printf("\nloop iterations: %d  loop sessions: %d  crossfades: %d\n",
		snapshot.LoopIterations, snapshot.LoopSessions, snapshot.Crossfades)
	fmt.Printf("outro playing: %v\n", outro.Playing())
}
