package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newFilesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List files in the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().Files(ctx)
			if err != nil {
				return err
			}

			printf(opts.out, "vector store %s: %d file(s)\n", res.VectorStoreID, len(res.Files))
			tw := tabwriter.NewWriter(opts.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILENAME\tSTATUS\tBYTES\tCREATED")
			for _, f := range res.Files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", f.ID, f.Filename, f.Status, f.UsageBytes, f.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newRmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id>...",
		Short: "Remove files from the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			client := opts.client()

			for _, id := range args {
				if err := client.DeleteFile(ctx, id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				printf(opts.out, "deleted %s\n", id)
			}
			return nil
		},
	}
}
