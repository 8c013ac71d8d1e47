package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show daemon runtime statistics",
	Long: `Show timing and token statistics for the daemon's instrumented
operations, for cost monitoring.

Examples:
  pulse usage
  pulse usage -v`,
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	status, err := apiClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	m := status.Metrics

	fmt.Printf("Daemon Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", m.UptimeSeconds)

	ops := []struct {
		name  string
		stats *client.OperationStats
	}{
		{"Oracle Decide", m.OracleDecide},
		{"Summarize", m.Summarize},
		{"Extract", m.Extract},
		{"Embedding", m.Embedding},
		{"DB Query", m.DBQuery},
		{"Fusion", m.Fusion},
		{"Action Exec", m.ActionExec},
	}
	for _, op := range ops {
		if op.stats == nil {
			continue
		}
		fmt.Printf("\n%s:\n", op.name)
		printOpStats(op.stats)
		printTokenStats(op.stats)
	}

	if len(m.Counters) > 0 {
		fmt.Printf("\nCounters:\n")
		printSorted(m.Counters)
	}
	if len(m.Gauges) > 0 {
		fmt.Printf("\nGauges:\n")
		printSorted(m.Gauges)
	}

	return nil
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *client.OperationStats) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *client.OperationStats) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Println()
}

func printSorted(values map[string]int64) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-22s %d\n", name, values[name])
	}
}
