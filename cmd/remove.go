package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Remove all chunks indexed from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", args[0], err)
	}

	ids, err := a.store.IDsByMetadata(ctx, map[string]any{"source": abs})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No chunks found for that source.")
		return nil
	}

	deleted, err := a.store.DeleteMany(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d chunks.\n", deleted)
	return nil
}
