package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the daemon's live state: heartbeat scheduler, background worker
and cycle counters.

Examples:
  pulse status
  pulse status -v`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	status, err := apiClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	printSchedulerStatus(status.Scheduler)
	fmt.Println()
	printWorkerStatus(status.Worker)

	m := status.Metrics
	fmt.Printf("\nDaemon:\n")
	fmt.Printf("  Uptime:    %s\n", (time.Duration(m.UptimeSeconds) * time.Second).String())
	fmt.Printf("  Cycles:    %d completed, %d skipped, %d fallback\n",
		m.Counters["cycles_completed"], m.Counters["cycles_skipped"], m.Counters["cycles_fallback"])
	if dropped := m.Counters["ticks_dropped"]; dropped > 0 {
		fmt.Printf("  Dropped:   %d ticks\n", dropped)
	}

	return nil
}

func printSchedulerStatus(s *client.SchedulerStatus) {
	fmt.Printf("Scheduler:\n")
	if s == nil {
		fmt.Printf("  disabled\n")
		return
	}

	state := "ticking"
	if s.SessionActive {
		state = "paused (session active)"
	}
	fmt.Printf("  State:     %s\n", state)
	fmt.Printf("  In cycle:  %v\n", s.CycleInFlight)
	if s.LastUserContact != nil {
		fmt.Printf("  Last user contact: %s ago\n", time.Since(*s.LastUserContact).Round(time.Second))
	}
}

func printWorkerStatus(w *client.WorkerHealth) {
	fmt.Printf("Worker:\n")
	if w == nil {
		fmt.Printf("  disabled\n")
		return
	}

	state := "stopped"
	if w.Running {
		state = "running"
	}
	fmt.Printf("  State:     %s\n", state)
	fmt.Printf("  Backlogs:  %d stale, %d unsummarized, %d unlinked\n",
		w.StaleBacklog, w.UnsummarizedBacklog, w.UnlinkedBacklog)
	if w.LastCycleAt != nil {
		fmt.Printf("  Last pass: %s ago\n", time.Since(*w.LastCycleAt).Round(time.Second))
	}
	if w.LastCleanupAt != nil {
		fmt.Printf("  Last cleanup: %s ago\n", time.Since(*w.LastCleanupAt).Round(time.Second))
	}
	if w.LastError != "" {
		fmt.Printf("  Last error: %s\n", w.LastError)
	}
}
