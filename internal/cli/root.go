// Package cli implements ragctl, a command-line client for the backend.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	apiKey  string
	token   string
	timeout time.Duration
	out     io.Writer
	errOut  io.Writer
}

func (o *options) client() *Client {
	return NewClient(o.server, o.apiKey, o.token, &http.Client{})
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// NewRootCmd builds the ragctl command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Upload documents to and ask questions of an OpenFast-RAG backend",
		Long: `ragctl talks to a running OpenFast-RAG backend over HTTP.

Example usage:
  ragctl upload "docs/**/*.md"        # Upload and index matching files
  ragctl ask "How do I rotate keys?"  # Ask a question
  ragctl ask --stream "Summarize"     # Stream the answer as it is generated
  ragctl files                        # List indexed files`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("OPENFAST_SERVER", "http://localhost:8080"), "backend base URL")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("API_KEY"), "value for the X-API-Key header")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("OPENFAST_TOKEN"), "bearer token for firebase auth")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall request timeout (0 disables)")

	rootCmd.AddCommand(
		newUploadCmd(opts),
		newAskCmd(opts),
		newFilesCmd(opts),
		newRmCmd(opts),
		newStoreCmd(opts),
		newStoresCmd(opts),
	)
	return rootCmd
}

func Execute() {
	if err := NewRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
