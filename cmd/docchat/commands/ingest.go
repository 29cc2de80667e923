package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"docchat-go/internal/app"
	"docchat-go/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk, embed and store one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlag(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	return withApp(cmd.Context(), func(a *app.App) error {
		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			res, err := a.Processor.Ingest(cmd.Context(), pipeline.IngestRequest{
				OwnerID:  ownerID,
				FileName: filepath.Base(path),
				Data:     data,
			})
			if err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "✓ %s: %d chunks\n", res.FileName, res.ChunksProcessed)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	})
}
