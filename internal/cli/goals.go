package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
	"github.com/raphaelgruber/pulse/internal/parser"
)

var (
	goalsPriority []string
	goalsLimit    int

	goalAddDescription string
	goalAddSource      string
	goalAddLabels      []string
	goalAddValence     float64

	goalChangeReason string
)

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Manage the goal backlog",
	Long: `List and edit the daemon's goal backlog.

Subcommands:
  list     List goals (default)
  add      Add a goal
  show     Show one goal with its progress log
  note     Append a progress note
  change   Move a goal to another priority tier
  import   Import goals from Markdown files

Examples:
  pulse goals
  pulse goals --priority active,queued
  pulse goals add "Learn fermentation" --labels kitchen --valence 0.6
  pulse goals change goal-id completed
  pulse goals import backlog/*.md`,
	RunE: runGoalsList,
}

var goalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	RunE:  runGoalsList,
}

var goalsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalsAdd,
}

var goalsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one goal with its progress log",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalsShow,
}

var goalsNoteCmd = &cobra.Command{
	Use:   "note <id> <text>...",
	Short: "Append a progress note to a goal",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runGoalsNote,
}

var goalsChangeCmd = &cobra.Command{
	Use:   "change <id> <active|queued|backburner|completed|abandoned>",
	Short: "Move a goal to another priority tier",
	Args:  cobra.ExactArgs(2),
	RunE:  runGoalsChange,
}

var goalsImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import goals from Markdown files with YAML frontmatter",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGoalsImport,
}

func init() {
	goalsCmd.PersistentFlags().StringSliceVarP(&goalsPriority, "priority", "p", nil, "filter by priority tiers")
	goalsCmd.PersistentFlags().IntVarP(&goalsLimit, "limit", "n", 50, "max results")

	goalsAddCmd.Flags().StringVarP(&goalAddDescription, "description", "d", "", "longer description")
	goalsAddCmd.Flags().StringVar(&goalAddSource, "source", "", "goal source (default user_request)")
	goalsAddCmd.Flags().StringSliceVarP(&goalAddLabels, "labels", "l", nil, "labels/tags")
	goalsAddCmd.Flags().Float64Var(&goalAddValence, "valence", 0, "initial emotional valence in [-1, 1]")

	goalsChangeCmd.Flags().StringVarP(&goalChangeReason, "reason", "r", "", "reason (required when abandoning)")

	goalsCmd.AddCommand(goalsListCmd)
	goalsCmd.AddCommand(goalsAddCmd)
	goalsCmd.AddCommand(goalsShowCmd)
	goalsCmd.AddCommand(goalsNoteCmd)
	goalsCmd.AddCommand(goalsChangeCmd)
	goalsCmd.AddCommand(goalsImportCmd)
}

func runGoalsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	goals, err := apiClient.ListGoals(ctx, goalsPriority, goalsLimit)
	if err != nil {
		return fmt.Errorf("list goals: %w", err)
	}

	if len(goals) == 0 {
		fmt.Println("No goals found.")
		return nil
	}

	fmt.Printf("Goals (%d):\n\n", len(goals))
	for _, g := range goals {
		fmt.Printf("- [%s] %s (%s)\n", g.Priority, g.Title, g.ID)
		if verbose {
			if g.Description != "" {
				fmt.Printf("  %s\n", g.Description)
			}
			if len(g.Labels) > 0 {
				fmt.Printf("  Labels: %s\n", strings.Join(g.Labels, ", "))
			}
			fmt.Printf("  Valence: %+.2f, touched %s\n", g.EmotionalValence, g.LastTouched.Format("2006-01-02 15:04"))
		}
	}

	return nil
}

func runGoalsAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	goal, err := apiClient.CreateGoal(ctx, client.GoalInput{
		Title:            args[0],
		Description:      goalAddDescription,
		Source:           goalAddSource,
		Labels:           goalAddLabels,
		EmotionalValence: goalAddValence,
	})
	if err != nil {
		return fmt.Errorf("add goal: %w", err)
	}

	fmt.Printf("Added goal %s [%s]\n", goal.ID, goal.Priority)
	return nil
}

func runGoalsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	goal, err := apiClient.GetGoal(ctx, args[0])
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("no goal with id %q", args[0])
		}
		return fmt.Errorf("get goal: %w", err)
	}

	fmt.Printf("%s\n", goal.Title)
	fmt.Printf("  ID:       %s\n", goal.ID)
	fmt.Printf("  Priority: %s\n", goal.Priority)
	fmt.Printf("  Source:   %s\n", goal.Source)
	if goal.Description != "" {
		fmt.Printf("  Description: %s\n", goal.Description)
	}
	if len(goal.Labels) > 0 {
		fmt.Printf("  Labels:   %s\n", strings.Join(goal.Labels, ", "))
	}
	fmt.Printf("  Valence:  %+.2f\n", goal.EmotionalValence)
	if goal.ParentID != nil {
		fmt.Printf("  Parent:   %s\n", *goal.ParentID)
	}
	if goal.BlockedBy != nil {
		fmt.Printf("  Blocked by: %s\n", *goal.BlockedBy)
	}
	fmt.Printf("  Created:  %s\n", goal.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("  Touched:  %s\n", goal.LastTouched.Format("2006-01-02 15:04"))
	if goal.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", goal.CompletedAt.Format("2006-01-02 15:04"))
	}
	if goal.AbandonedAt != nil {
		reason := ""
		if goal.AbandonmentReason != nil {
			reason = " (" + *goal.AbandonmentReason + ")"
		}
		fmt.Printf("  Abandoned: %s%s\n", goal.AbandonedAt.Format("2006-01-02 15:04"), reason)
	}

	if len(goal.Progress) > 0 {
		fmt.Printf("\nProgress (%d):\n", len(goal.Progress))
		for _, note := range goal.Progress {
			fmt.Printf("  %s  %s\n", note.At.Format("2006-01-02 15:04"), note.Text)
		}
	}

	return nil
}

func runGoalsNote(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	text := strings.Join(args[1:], " ")
	if err := apiClient.AddGoalNote(ctx, args[0], text); err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("no goal with id %q", args[0])
		}
		return fmt.Errorf("add note: %w", err)
	}

	fmt.Println("Note added.")
	return nil
}

func runGoalsChange(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.ChangeGoal(ctx, args[0], args[1], goalChangeReason); err != nil {
		switch {
		case client.IsNotFound(err):
			return fmt.Errorf("no goal with id %q", args[0])
		case client.IsConflict(err):
			return fmt.Errorf("change refused: %w", err)
		}
		return fmt.Errorf("change goal: %w", err)
	}

	fmt.Printf("Goal %s moved to %s.\n", args[0], args[1])
	return nil
}

func runGoalsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var failed int
	for _, path := range args {
		if err := importGoalFile(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", path, err)
			failed++
		}
	}

	imported := len(args) - failed
	fmt.Printf("Imported %d of %d goal files.\n", imported, len(args))
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

func importGoalFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	gf, err := parser.ParseGoalFile(string(content))
	if err != nil {
		return err
	}

	goal, err := apiClient.CreateGoal(ctx, client.GoalInput{
		Title:            gf.Title,
		Description:      gf.Description,
		Source:           gf.Source,
		Labels:           gf.Labels,
		EmotionalValence: gf.Valence,
	})
	if err != nil {
		return err
	}

	for _, note := range gf.Notes {
		if err := apiClient.AddGoalNote(ctx, goal.ID, note); err != nil {
			return fmt.Errorf("note on %s: %w", goal.ID, err)
		}
	}

	fmt.Printf("- %s -> %s\n", path, goal.ID)
	return nil
}
