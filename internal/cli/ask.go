package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

func newAskCmd(opts *options) *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question answered from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			ctx, cancel := opts.context(cmd)
			defer cancel()
			client := opts.client()

			if stream {
				ans, err := client.AskStream(ctx, question, func(delta string) {
					printf(opts.out, "%s", delta)
				})
				if err != nil {
					return err
				}
				printf(opts.out, "\n")
				printCitations(opts, ans.Citations)
				return nil
			}

			ans, err := client.Ask(ctx, question)
			if err != nil {
				return err
			}
			printf(opts.out, "%s\n", ans.Answer)
			printCitations(opts, ans.Citations)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "print the answer while it is generated")
	return cmd
}

func printCitations(opts *options, cits []domain.Citation) {
	if len(cits) == 0 {
		return
	}
	printf(opts.out, "\nSources:\n")
	for _, c := range cits {
		if c.Filename != "" {
			printf(opts.out, "  - %s (%s)\n", c.Filename, c.FileID)
		} else {
			printf(opts.out, "  - %s\n", c.FileID)
		}
	}
}
