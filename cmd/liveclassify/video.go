package main

import (
	"context"
	"fmt"

	"github.com/petems/live-classify/internal/app"
	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/permissions"
	"github.com/petems/live-classify/internal/render"
	"github.com/petems/live-classify/internal/video"
	"github.com/spf13/cobra"
)

var (
	videoFlags  runFlags
	videoDevice int
	videoWidth  int
	videoHeight int
)

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Classify webcam frames with an image model",
	RunE:  runVideo,
}

func init() {
	videoFlags.register(videoCmd, "continue")
	videoCmd.Flags().IntVar(&videoDevice, "device", 0, "camera index")
	videoCmd.Flags().IntVar(&videoWidth, "width", 640, "frame width")
	videoCmd.Flags().IntVar(&videoHeight, "height", 480, "frame height")
	rootCmd.AddCommand(videoCmd)
}

func runVideo(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	videoFlags.apply(cmd, cfg)
	if flags.Changed("on-error") {
		cfg.Video.OnError = videoFlags.onError
	}
	if flags.Changed("device") {
		cfg.Video.DeviceID = videoDevice
	}
	if flags.Changed("width") {
		cfg.Video.Width = videoWidth
	}
	if flags.Changed("height") {
		cfg.Video.Height = videoHeight
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := errorPolicy(cfg.Video.OnError)
	if err != nil {
		return err
	}

	// macOS requires explicit camera approval before capture works
	if err := permissions.Ensure(permissions.Camera); err != nil {
		return err
	}

	capture, err := video.Open(cfg.Video, log)
	if err != nil {
		return err
	}
	defer capture.Close()

	// Close waits for the read loop, so cancel first
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("failed to start camera: %w", err)
	}

	clf := video.NewImageClassifier(capture, cfg.ModelURL, newFetcher(), log)
	defer clf.Close()

	loop, err := classify.New(classify.Config{
		Classifier:     clf,
		OnError:        policy,
		ShowConfidence: cfg.ShowConfidence,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	frames := func(snap classify.Snapshot) ([]byte, error) {
		frame, ok := capture.Latest()
		defer frame.Close()
		if !ok {
			return nil, errNoFrame
		}
		render.Overlay(&frame, snap.Label)
		return render.JPEG(frame)
	}

	width, height := capture.Size()
	log.Info().Str("model", cfg.ModelURL).Int("device", cfg.Video.DeviceID).Msg("Live image classification starting...")
	return run(ctx, app.Video, loop, width, height, frames)
}
