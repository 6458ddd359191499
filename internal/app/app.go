package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/config"
	"github.com/petems/live-classify/internal/surface"
	"github.com/rs/zerolog"
)

type Mode string

const (
	Video Mode = "video"
	Audio Mode = "audio"
)

// StatusUpdater is an interface for updating status (e.g., tray title)
type StatusUpdater interface {
	SetStatus(snap classify.Snapshot)
}

// Runner is a surface with its own serve loop, like the web server.
type Runner interface {
	surface.Surface
	Run(ctx context.Context) error
}

type Config struct {
	Mode          Mode
	Loop          *classify.Loop
	Config        *config.Config
	Surfaces      []surface.Surface
	Server        Runner        // Optional - can be nil
	StatusUpdater StatusUpdater // Optional - can be nil
	Logger        zerolog.Logger
}

type App struct {
	mode     Mode
	loop     *classify.Loop
	cfg      *config.Config
	surfaces []surface.Surface
	server   Runner
	status   StatusUpdater
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

func New(cfg Config) *App {
	return &App{
		mode:     cfg.Mode,
		loop:     cfg.Loop,
		cfg:      cfg.Config,
		surfaces: cfg.Surfaces,
		server:   cfg.Server,
		status:   cfg.StatusUpdater,
		log:      cfg.Logger,
	}
}

// Run starts the render tick, the optional server and the classification
// loop. It returns when ctx is done, or early with the error of a failed
// model load or server. A halted loop keeps its label on screen until ctx
// is done.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return classify.ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	surfaces := append([]surface.Surface{surface.Log(a.log)}, a.surfaces...)
	if a.status != nil {
		surfaces = append(surfaces, surface.OnChange(surface.Func(a.status.SetStatus)))
	}
	if a.server != nil {
		surfaces = append(surfaces, a.server)
	}

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		surface.Run(ctx, a.loop.State(), a.cfg.Display.FPS, surfaces...)
	}()

	if a.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("Web surface stopped")
				fail(fmt.Errorf("web surface: %w", err))
			}
		}()
	}

	a.log.Info().Str("mode", string(a.mode)).Str("loop", a.loop.ID()).Msg("Starting")
	if err := a.loop.Run(ctx); err != nil {
		fail(err)
	}

	<-ctx.Done()
	wg.Wait()
	return runErr
}

// Tray actions

// SetShowConfidence applies to the next result and is saved to the config
// file. Only show_confidence is written; flag overrides held in memory stay
// out of the file.
func (a *App) SetShowConfidence(show bool) error {
	a.loop.SetShowConfidence(show)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.ShowConfidence = show

	stored, err := config.LoadFrom(a.cfg.Path())
	if err != nil {
		return err
	}
	stored.ShowConfidence = show
	return stored.Save()
}

func (a *App) ShowConfidence() bool {
	return a.loop.ShowConfidence()
}

// Label is the text currently on screen.
func (a *App) Label() string {
	return a.loop.State().Label()
}

func (a *App) Mode() Mode {
	return a.mode
}
