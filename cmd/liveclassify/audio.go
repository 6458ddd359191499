package main

import (
	"github.com/petems/live-classify/internal/app"
	"github.com/petems/live-classify/internal/audio"
	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/permissions"
	"github.com/petems/live-classify/internal/render"
	"github.com/spf13/cobra"
)

var (
	audioFlags     runFlags
	audioDevice    string
	audioThreshold float64
	audioOverlap   float64
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Classify microphone audio continuously with a sound model",
	RunE:  runAudio,
}

func init() {
	audioFlags.register(audioCmd, "halt")
	audioCmd.Flags().StringVar(&audioDevice, "device", "", "input device ID or name (default: system default)")
	audioCmd.Flags().Float64Var(&audioThreshold, "threshold", 0.5, "minimum probability for a sound to be reported")
	audioCmd.Flags().Float64Var(&audioOverlap, "overlap", 0.5, "overlap between consecutive analysis windows, in [0,1)")
	rootCmd.AddCommand(audioCmd)
}

func runAudio(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	audioFlags.apply(cmd, cfg)
	if flags.Changed("on-error") {
		cfg.Audio.OnError = audioFlags.onError
	}
	if flags.Changed("device") {
		cfg.Audio.DeviceID = audioDevice
	}
	if flags.Changed("threshold") {
		cfg.Audio.ProbabilityThreshold = audioThreshold
	}
	if flags.Changed("overlap") {
		cfg.Audio.OverlapFactor = audioOverlap
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := errorPolicy(cfg.Audio.OnError)
	if err != nil {
		return err
	}

	// macOS requires explicit microphone approval before capture works
	if err := permissions.Ensure(permissions.Microphone); err != nil {
		return err
	}

	capture, err := audio.New(cfg.Audio, log)
	if err != nil {
		return err
	}
	defer capture.Close()

	lst := audio.NewListener(capture, cfg.ModelURL, newFetcher(), cfg.Audio, log)
	defer lst.Close()

	loop, err := classify.New(classify.Config{
		Listener:       lst,
		OnError:        policy,
		ShowConfidence: cfg.ShowConfidence,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	frames := func(snap classify.Snapshot) ([]byte, error) {
		img := render.Canvas(render.CanvasWidth, render.CanvasHeight, snap.Label)
		defer img.Close()
		return render.JPEG(img)
	}

	log.Info().Str("model", cfg.ModelURL).Str("device", cfg.Audio.DeviceID).Msg("Live sound classification starting...")
	return run(cmd.Context(), app.Audio, loop, render.CanvasWidth, render.CanvasHeight, frames)
}
