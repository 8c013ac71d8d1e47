package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Trigger one heartbeat cycle now",
	Long: `Ask the scheduler to run a cycle immediately instead of waiting for
the next tick. Refused while a session is active or a cycle is already
running.`,
	RunE: runCycle,
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.TriggerCycle(ctx); err != nil {
		if client.IsConflict(err) {
			return fmt.Errorf("refused: %w", err)
		}
		return fmt.Errorf("trigger cycle: %w", err)
	}

	fmt.Println("Cycle triggered.")
	return nil
}
