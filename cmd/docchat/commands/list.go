package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"docchat-go/internal/app"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's documents, most recent first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlag(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	return withApp(cmd.Context(), func(a *app.App) error {
		docs, err := a.Documents.ListDocuments(cmd.Context(), ownerID)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tCHUNKS\tUPLOADED")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%d\t%s\n", d.FileName, d.ChunkCount, d.FirstUploadTimestamp.Local().Format(time.DateTime))
		}
		return w.Flush()
	})
}
