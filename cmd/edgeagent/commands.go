package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/edgeagent/pkg/agent"
	"github.com/cuemby/edgeagent/pkg/nodestore"
	"github.com/cuemby/edgeagent/pkg/storage"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Sample connectivity and restart the tunnel when VPN stays down",
	Long: `Sample the status LEDs until the VPN is up or the attempt budget is
spent. Consecutive internet-only readings restart the tunnel service.
Running out of attempts is not an error; the next scheduled run retries.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd, "watchdog", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.Watchdog(ctx)
		})
	},
}

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Post a heartbeat to the control plane",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withVPN, _ := cmd.Flags().GetBool("vpn-status")
		return runPass(cmd, "online", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.Online(ctx, withVPN)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Enforce the device activation flag on the WAN interface",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd, "validate", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.Validate(ctx)
		})
	},
}

var syncNodeCmd = &cobra.Command{
	Use:   "sync-node",
	Short: "Synchronize the tunnel node with the assigned descriptor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd, "sync-node", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.SyncNode(ctx)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconcile managed artifacts and the cron schedule",
	Long: `Fetch every managed artifact and replace local copies whose content
differs, bootstrap the base location when it is missing, rewrite the cron
schedule when it drifted and notify the control plane.

Examples:
  # Apply the built-in manifest
  edgeagent update

  # Apply a custom manifest
  EDGEAGENT_MANIFEST=/etc/edgeagent/manifest.yaml edgeagent update`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd, "update", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.Update(ctx)
		})
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Refresh the control-plane base location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd, "locate", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.Locate(ctx)
		})
	},
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Apply files queued for this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd, "deliver", func(ctx context.Context, env *agent.Env) (agent.Outcome, error) {
			return env.Deliver(ctx)
		})
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print recent passes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openJournal(cfg.StateDB)
		if err != nil {
			return err
		}
		defer store.Close()

		return printJournal(cmd.OutOrStdout(), store, limit)
	},
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Print the tunnel nodes managed in the node store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printNodes(cmd.OutOrStdout(), nodestore.NewFileStore(cfg.NodeStore))
	},
}

func printJournal(w io.Writer, store storage.Store, limit int) error {
	records, err := store.List(limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	return encodeYAML(w, records)
}

func printNodes(w io.Writer, store nodestore.Store) error {
	nodes, err := store.Nodes()
	if err != nil {
		return err
	}
	return encodeYAML(w, nodes)
}

func encodeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	onlineCmd.Flags().Bool("vpn-status", false, "Annotate the heartbeat with the VPN state read from the LEDs")
	journalCmd.Flags().IntP("limit", "n", 20, "Number of records to print (0 for all)")

	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(onlineCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(syncNodeCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(deliverCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(nodesCmd)
}
