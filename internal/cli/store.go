package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

func newStoreCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Show the vector store used by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			info, err := opts.client().Store(ctx)
			if err != nil {
				return err
			}
			printStore(opts, info)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete the vector store and all indexed files in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			id, err := opts.client().DeleteStore(ctx)
			if err != nil {
				return err
			}
			printf(opts.out, "deleted vector store %s\n", id)
			return nil
		},
	})
	return cmd
}

func newStoresCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List every vector store visible to the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			stores, err := opts.client().Stores(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(opts.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tFILES\tOWNED")
			for _, s := range stores {
				owned := ""
				if s.Owned {
					owned = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Name, s.Status, s.FileCounts.Total, owned)
			}
			return tw.Flush()
		},
	}
}

func printStore(opts *options, s *domain.StoreInfo) {
	printf(opts.out, "id:          %s\n", s.ID)
	printf(opts.out, "name:        %s\n", s.Name)
	printf(opts.out, "status:      %s\n", s.Status)
	printf(opts.out, "files:       %d completed, %d in progress, %d failed\n",
		s.FileCounts.Completed, s.FileCounts.InProgress, s.FileCounts.Failed)
	printf(opts.out, "usage bytes: %d\n", s.UsageBytes)
	printf(opts.out, "created:     %s\n", s.CreatedAt.Format(time.RFC3339))
	if s.ExpiresAt != nil {
		printf(opts.out, "expires:     %s\n", s.ExpiresAt.Format(time.RFC3339))
	}
}
