package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	flagEnvFile   string
	flagStateFile string
)

var rootCmd = &cobra.Command{
	Use:     "warden",
	Short:   "Warden - runtime-health monitor for long-running autonomous agents",
	Long:    `Warden watches a tick-driven autonomous agent, learns how long each of its modes normally takes, detects stuck or looping behavior, attempts graduated break-out recovery, and escalates to external reset mechanisms when recovery fails.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runMonitor()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Warden %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "path to an optional .env file")
	rootCmd.Flags().StringVar(&flagStateFile, "state-file", "", "path to the agent's state snapshot file (required)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(profilesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
