package commands

import (
	"fmt"

	"docchat-go/internal/app"

	"github.com/spf13/cobra"
)

var clearYes bool

// NewClearCmd creates the clear command.
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every document chunk owned by --owner",
		Args:  cobra.NoArgs,
		RunE:  runClear,
	}
	cmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation check")
	return cmd
}

func runClear(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlag(); err != nil {
		return err
	}
	if !clearYes {
		return fmt.Errorf("refusing to clear documents of %q without --yes", ownerID)
	}

	return withApp(cmd.Context(), func(a *app.App) error {
		res, err := a.Documents.ClearDocuments(cmd.Context(), ownerID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	})
}
