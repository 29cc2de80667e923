package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"docchat-go/internal/app"

	"github.com/spf13/cobra"
)

var askJSON bool

// NewAskCmd creates the ask command.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the owner's documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().BoolVar(&askJSON, "json", false, "print the raw JSON result")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := requireOwnerFlag(); err != nil {
		return err
	}
	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	return withApp(cmd.Context(), func(a *app.App) error {
		res, err := a.Answers.Answer(cmd.Context(), question, ownerID)
		if err != nil {
			return err
		}
		if askJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Fprintln(out, res.ResponseText)
		if len(res.Sources) > 0 {
			fmt.Fprintln(out, "\nSources:")
			for i, s := range res.Sources {
				fmt.Fprintf(out, "  [%d] %s #%d (%.3f)\n", i+1, s.FileName, s.ChunkIndex, s.Similarity)
			}
		}
		return nil
	})
}
