package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective config as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))

		if saveConfig {
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			log.Info().Str("path", cfg.Path()).Msg("Saved config")
		}
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "write the effective config back to the config file")
	rootCmd.AddCommand(configCmd)
}
