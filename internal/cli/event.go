package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var eventPayload string

var eventCmd = &cobra.Command{
	Use:   "event <kind>",
	Short: "Queue an external event for the daemon",
	Long: `Queue an event the scheduler will observe on its next cycle.

Examples:
  pulse event user_message --payload '{"text": "remember to water the basil"}'
  pulse event calendar_reminder`,
	Args: cobra.ExactArgs(1),
	RunE: runEvent,
}

func init() {
	eventCmd.Flags().StringVar(&eventPayload, "payload", "", "JSON payload")
}

func runEvent(cmd *cobra.Command, args []string) error {
	var payload map[string]any
	if eventPayload != "" {
		if err := json.Unmarshal([]byte(eventPayload), &payload); err != nil {
			return fmt.Errorf("invalid payload JSON: %w", err)
		}
	}

	event, err := apiClient.CreateEvent(context.Background(), args[0], payload)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	fmt.Printf("Queued event %s [%s]\n", event.ID, event.Kind)
	return nil
}
