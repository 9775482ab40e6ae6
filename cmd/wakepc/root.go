// Package cli implements the wakepc command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var settingsPath string

var rootCmd = &cobra.Command{
	Use:   "wakepc",
	Short: "Always-on wake-word voice assistant client",
	Long: `wakepc listens to the microphone for wake words, records the
utterance that follows, sends it to the hub for transcription and
reasoning, and broadcasts session events to local overlay observers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClient()
	},
	SilenceUsage: true,
}

// Execute runs the CLI and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "settings.yaml",
		"path to the settings file")
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wakepc version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("wakepc", version)
	},
}
