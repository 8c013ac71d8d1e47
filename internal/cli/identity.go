package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pulse/internal/client"
)

var identityValues []string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show or set the daemon's self-description",
	Long: `The identity record is the self-description the daemon reads every
cycle and rewrites when it recalibrates.

Examples:
  pulse identity
  pulse identity set "A curious caretaker of a small digital garden" --values curiosity,care`,
	RunE: runIdentityShow,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the identity",
	RunE:  runIdentityShow,
}

var identitySetCmd = &cobra.Command{
	Use:   "set <summary>",
	Short: "Replace the identity summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitySet,
}

func init() {
	identitySetCmd.Flags().StringSliceVar(&identityValues, "values", nil, "core values")

	identityCmd.AddCommand(identityShowCmd)
	identityCmd.AddCommand(identitySetCmd)
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	identity, err := apiClient.Identity(context.Background())
	if err != nil {
		if client.IsNotFound(err) {
			fmt.Println("No identity recorded yet.")
			return nil
		}
		return fmt.Errorf("get identity: %w", err)
	}

	fmt.Println(identity.Summary)
	if len(identity.Values) > 0 {
		fmt.Printf("\nValues: %s\n", strings.Join(identity.Values, ", "))
	}
	if !identity.UpdatedAt.IsZero() {
		fmt.Printf("Updated: %s\n", identity.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runIdentitySet(cmd *cobra.Command, args []string) error {
	identity := client.Identity{
		Summary: args[0],
		Values:  identityValues,
	}
	if err := apiClient.SetIdentity(context.Background(), identity); err != nil {
		return fmt.Errorf("set identity: %w", err)
	}

	fmt.Println("Identity updated.")
	return nil
}
