package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/edgeagent/pkg/config"
	"github.com/cuemby/edgeagent/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "edgeagent",
	Short: "edgeagent - on-device agent for managed routers",
	Long: `edgeagent keeps a managed router in step with its control plane.

Each subcommand is one short reconciliation pass meant to be started by
cron: connectivity watchdog, heartbeat, router validation, tunnel node
sync, self-update, base-location refresh and file deliveries.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("json") {
			loaded.LogJSON, _ = cmd.Flags().GetBool("json")
		}
		log.Init(log.Config{
			Level:      log.ParseLevel(loaded.LogLevel),
			JSONOutput: loaded.LogJSON,
		})

		cfg = loaded
		return nil
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"edgeagent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "Environment file read before EDGEAGENT_* variables")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Log as JSON")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edgeagent version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
