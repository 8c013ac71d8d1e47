// Package cli provides the command-line interface for pulse.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// apiClient talks to the running daemon.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Client for the pulse daemon",
	Long: `Pulse is an autonomous cognitive loop: a daemon that wakes on a
heartbeat, observes its environment, decides what to do within an energy
budget, acts, and remembers.

This command talks to a running pulsed daemon over its HTTP API: inspect
status and cycle history, manage the goal backlog, mark user sessions,
and watch cycles stream live.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "daemon URL (default $PULSE_SERVER_URL or http://localhost:8422)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(goalsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(usageCmd)
}
