package main

import (
	"context"
	"errors"
	"os"

	"github.com/petems/live-classify/internal/app"
	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/config"
	"github.com/petems/live-classify/internal/model"
	"github.com/petems/live-classify/internal/tray"
	"github.com/petems/live-classify/internal/web"
	"github.com/spf13/cobra"
)

var errNoFrame = errors.New("no frame yet")

// runFlags are the flags video and audio share.
type runFlags struct {
	modelURL       string
	onError        string
	showConfidence bool
	tray           bool
	web            string
	noWeb          bool
}

func (f *runFlags) register(cmd *cobra.Command, defaultPolicy string) {
	flags := cmd.Flags()
	flags.StringVar(&f.modelURL, "model-url", "", "base URL of the model (serves model.onnx and metadata.json)")
	flags.StringVar(&f.onError, "on-error", "", "after a failed classification: continue or halt (default "+defaultPolicy+")")
	flags.BoolVar(&f.showConfidence, "show-confidence", false, "append the confidence to the label")
	flags.BoolVar(&f.tray, "tray", false, "show the label in the system tray")
	flags.StringVar(&f.web, "web", "", "serve the web surface on this address (e.g. :8080)")
	flags.BoolVar(&f.noWeb, "no-web", false, "disable the web surface")
}

// apply copies the flags that were set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model-url") {
		cfg.ModelURL = f.modelURL
	}
	if flags.Changed("show-confidence") {
		cfg.ShowConfidence = f.showConfidence
	}
	if flags.Changed("tray") {
		cfg.Display.Tray = f.tray
	}
	if flags.Changed("web") {
		cfg.Display.Web = true
		cfg.Display.WebAddr = f.web
	}
	if f.noWeb {
		cfg.Display.Web = false
	}
}

func errorPolicy(s string) (classify.ErrorPolicy, error) {
	p, err := config.ParsePolicy(s)
	if err != nil {
		return classify.ContinueOnError, err
	}
	if p == config.OnErrorHalt {
		return classify.HaltOnError, nil
	}
	return classify.ContinueOnError, nil
}

func newFetcher() *model.Fetcher {
	return &model.Fetcher{
		Root:     config.ModelsPath(),
		Log:      log,
		Progress: os.Stderr,
	}
}

// run wires the loop to its surfaces and blocks until ctx is done or the
// app fails. With the tray enabled the tray owns the calling goroutine,
// which must be the main one.
func run(ctx context.Context, mode app.Mode, loop *classify.Loop, width, height int, frames web.FrameFunc) error {
	var server app.Runner
	if cfg.Display.Web {
		server = web.NewServer(web.Options{
			Addr:    cfg.Display.WebAddr,
			Mode:    string(mode),
			LoopID:  loop.ID(),
			Width:   width,
			Height:  height,
			State:   loop.State(),
			Frames:  frames,
			TickFPS: cfg.Display.FPS,
			Logger:  log,
		})
	}

	var (
		ui     *tray.UI
		status app.StatusUpdater
	)
	if cfg.Display.Tray {
		ui = tray.New(Version, Commit, log)
		status = ui
	}

	application := app.New(app.Config{
		Mode:          mode,
		Loop:          loop,
		Config:        cfg,
		Server:        server,
		StatusUpdater: status,
		Logger:        log,
	})

	if ui == nil {
		return application.Run(ctx)
	}

	// Set app reference in tray
	ui.SetApp(application)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
		cancel()
	}()

	// Start tray UI - MUST run on main thread
	if err := ui.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}
	cancel()
	return <-errCh
}
