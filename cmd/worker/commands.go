package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/openfast-rag/openfast-rag-backend/internal/idstore"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

type reconciler interface {
	Reconcile(ctx context.Context) (domain.ReconcileResult, error)
}

type forgetter interface {
	Current(ctx context.Context) (string, error)
	Forget(ctx context.Context, id string) error
}

// RunShow prints every persisted name to id mapping.
func RunShow(ctx context.Context, store idstore.Store, out io.Writer) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no persisted ids")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tUPDATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.ID, e.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// RunReconcile runs one reconcile pass and prints the outcome as JSON.
func RunReconcile(ctx context.Context, r reconciler, out io.Writer) error {
	res, err := r.Reconcile(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// RunForget clears the persisted id without touching the remote store.
func RunForget(ctx context.Context, f forgetter, out io.Writer) error {
	id, err := f.Current(ctx)
	if err != nil {
		return err
	}
	if err := f.Forget(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "forgot %s\n", id)
	return nil
}
