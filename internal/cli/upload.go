package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newUploadCmd(opts *options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file|glob>...",
		Short: "Upload and index documents",
		Long: `Upload files to the backend, which indexes them into its vector store.
Arguments may be doublestar globs such as "docs/**/*.pdf".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files match %s", strings.Join(args, " "))
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			client := opts.client()

			var failed int
			for i, path := range paths {
				if err := uploadOne(ctx, opts, client, path, i+1, len(paths), quiet); err != nil {
					failed++
					printf(opts.errOut, "%s: %v\n", path, err)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func uploadOne(ctx context.Context, opts *options, client *Client, path string, n, total int, quiet bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var r io.Reader = f
	if !quiet {
		bar := progressbar.NewOptions64(info.Size(),
			progressbar.OptionSetWriter(opts.errOut),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan][%d/%d][reset] %s", n, total, filepath.Base(path))),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(opts.errOut)
			}),
		)
		defer bar.Close()
		r = io.TeeReader(f, bar)
	}

	res, err := client.Upload(ctx, filepath.Base(path), r)
	if err != nil {
		return err
	}
	printf(opts.out, "%s\t%s\t%s\n", res.FileID, res.Status, path)
	return nil
}

// expandPaths resolves glob arguments to regular files, keeping order and
// dropping duplicates.
func expandPaths(args []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory; use a glob such as %q", arg, filepath.Join(arg, "**", "*"))
			}
			add(arg)
			continue
		}

		if !doublestar.ValidatePathPattern(arg) {
			return nil, fmt.Errorf("invalid glob %q", arg)
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", arg, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				add(m)
			}
		}
	}
	return out, nil
}
