package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionSignificant bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Mark user session boundaries",
	Long: `Tell the daemon when a user session starts and ends. The heartbeat
loop pauses while a session is active; ending a significant session
triggers an immediate cycle so the session gets processed right away.

Examples:
  pulse session start
  pulse session end
  pulse session end --significant`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session (pauses the heartbeat loop)",
	RunE:  runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the session (resumes the heartbeat loop)",
	RunE:  runSessionEnd,
}

func init() {
	sessionEndCmd.Flags().BoolVar(&sessionSignificant, "significant", false, "trigger an immediate cycle")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	if err := apiClient.StartSession(context.Background()); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Println("Session started, heartbeat paused.")
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	if err := apiClient.EndSession(context.Background(), sessionSignificant); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if sessionSignificant {
		fmt.Println("Session ended, cycle queued.")
	} else {
		fmt.Println("Session ended.")
	}
	return nil
}
