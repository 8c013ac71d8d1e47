package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	outboxAll   bool
	outboxLimit int
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Show messages the daemon wants to send you",
	Long: `The reach_out_user action queues messages in the outbox. This lists
them; mark one delivered once you have read it.

Examples:
  pulse outbox
  pulse outbox --all
  pulse outbox delivered <id>`,
	RunE: runOutboxList,
}

var outboxDeliveredCmd = &cobra.Command{
	Use:   "delivered <id>",
	Short: "Mark an outbox message as delivered",
	Args:  cobra.ExactArgs(1),
	RunE:  runOutboxDelivered,
}

func init() {
	outboxCmd.Flags().BoolVar(&outboxAll, "all", false, "include delivered messages")
	outboxCmd.Flags().IntVarP(&outboxLimit, "limit", "n", 20, "max results")

	outboxCmd.AddCommand(outboxDeliveredCmd)
}

func runOutboxList(cmd *cobra.Command, args []string) error {
	messages, err := apiClient.ListOutbox(context.Background(), !outboxAll, outboxLimit)
	if err != nil {
		return fmt.Errorf("list outbox: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("Outbox is empty.")
		return nil
	}

	fmt.Printf("Outbox (%d):\n\n", len(messages))
	for _, m := range messages {
		mark := ""
		if m.Delivered {
			mark = " [delivered]"
		}
		fmt.Printf("- %s  %s%s\n", m.ID, m.CreatedAt.Format("2006-01-02 15:04"), mark)
		fmt.Printf("  %s\n", m.Body)
	}

	return nil
}

func runOutboxDelivered(cmd *cobra.Command, args []string) error {
	if err := apiClient.MarkOutboxDelivered(context.Background(), args[0]); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	fmt.Println("Marked delivered.")
	return nil
}
