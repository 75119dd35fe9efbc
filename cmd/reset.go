package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every document in the store",
	Long: `Reset truncates the documents table, removing all indexed content.
The schema and indexes stay in place, so the store is immediately
usable afterwards. This cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	count, err := a.store.Count(ctx, nil)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("Store is already empty.")
		return nil
	}

	if !resetYes {
		fmt.Printf("This permanently deletes %d documents. Type 'yes' to continue: ", count)
		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(answer) != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := a.store.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("Deleted %d documents.\n", count)
	return nil
}
