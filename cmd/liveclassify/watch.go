package main

import (
	"time"

	"github.com/petems/live-classify/internal/web"
	"github.com/spf13/cobra"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the label of a running video or audio session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		for {
			err := web.Watch(ctx, watchAddr, func(st web.Status) {
				log.Info().
					Str("mode", st.Mode).
					Str("label", st.Label).
					Str("phase", st.Phase.String()).
					Float64("confidence", st.Confidence).
					Msg("Label")
			})
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("addr", watchAddr).Msg("Status stream lost, retrying")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "localhost:8080", "address of the web surface")
	rootCmd.AddCommand(watchCmd)
}
