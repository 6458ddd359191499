package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/petems/live-classify/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevices()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices() error {
	capture, err := audio.New(cfg.Audio, log)
	if err != nil {
		return err
	}
	defer capture.Close()

	devices, err := capture.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list audio devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No audio input devices found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCHANNELS\tDEFAULT")
	fmt.Fprintln(w, "--\t----\t--------\t-------")

	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.ID, d.Name, d.Channels, def)
	}
	return w.Flush()
}
