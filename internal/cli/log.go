package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [number]",
	Short: "Show recent heartbeat cycles",
	Long: `Show the daemon's cycle history, newest first, or one cycle in full.

Examples:
  pulse log
  pulse log -n 5
  pulse log 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 10, "max cycles to show")
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		number, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("cycle number must be an integer: %q", args[0])
		}
		return showHeartbeat(ctx, number)
	}

	records, err := apiClient.ListHeartbeats(ctx, logLimit)
	if err != nil {
		return fmt.Errorf("list heartbeats: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No cycles recorded yet.")
		return nil
	}

	for _, rec := range records {
		kinds := make([]string, 0, len(rec.Actions))
		for _, a := range rec.Actions {
			kinds = append(kinds, a.Kind)
		}

		fmt.Printf("#%d  %s  energy %.1f→%.1f  valence %+.2f\n",
			rec.Number, rec.EndedAt.Format("2006-01-02 15:04:05"),
			rec.EnergyStart, rec.EnergyEnd, rec.EmotionalValence)
		if len(kinds) > 0 {
			fmt.Printf("    actions: %s\n", strings.Join(kinds, ", "))
		}
		if rec.Narrative != "" {
			fmt.Printf("    %s\n", firstLine(rec.Narrative))
		}
	}

	return nil
}

func showHeartbeat(ctx context.Context, number int64) error {
	rec, err := apiClient.GetHeartbeat(ctx, number)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("no cycle #%d", number)
		}
		return fmt.Errorf("get heartbeat: %w", err)
	}

	fmt.Printf("Cycle #%d\n", rec.Number)
	fmt.Printf("  Ran:     %s, took %s\n",
		rec.StartedAt.Format("2006-01-02 15:04:05"), rec.EndedAt.Sub(rec.StartedAt).String())
	fmt.Printf("  Energy:  %.1f → %.1f\n", rec.EnergyStart, rec.EnergyEnd)
	fmt.Printf("  Valence: %+.2f\n", rec.EmotionalValence)
	if rec.Environment.SessionActive {
		fmt.Printf("  Session was active at cycle start\n")
	}
	if n := len(rec.Environment.PendingEvents); n > 0 {
		fmt.Printf("  Pending events: %d\n", n)
	}

	if rec.DecisionReasoning != "" {
		fmt.Printf("\nReasoning:\n  %s\n", rec.DecisionReasoning)
	}

	if len(rec.Actions) > 0 {
		fmt.Printf("\nActions (%d):\n", len(rec.Actions))
		for _, a := range rec.Actions {
			marker := "✓"
			if _, failed := a.Result["error"]; failed {
				marker = "✗"
			}
			fmt.Printf("  %s %s (cost %.1f)\n", marker, a.Kind, a.CostCharged)
			if verbose {
				for k, v := range a.Result {
					fmt.Printf("      %s: %v\n", k, v)
				}
			}
		}
	}

	if len(rec.GoalsModified) > 0 {
		fmt.Printf("\nGoal changes (%d):\n", len(rec.GoalsModified))
		for _, gc := range rec.GoalsModified {
			reason := ""
			if gc.Reason != "" {
				reason = " (" + gc.Reason + ")"
			}
			fmt.Printf("  %s → %s%s\n", gc.GoalID, gc.Change, reason)
		}
	}

	if rec.Narrative != "" {
		fmt.Printf("\nNarrative:\n  %s\n", rec.Narrative)
	}

	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
