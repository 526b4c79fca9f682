package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/edzip/edzip"
	"github.com/edzip/edzip/store/sqlite"
)

// NewCatCommand creates the 'cat' command, which extracts entries and
// writes their content to stdout.
func NewCatCommand() *cobra.Command {
	var indexPath string
	var parallel int

	cmd := &cobra.Command{
		Use:   "cat <archive> <name>...",
		Short: "Extract entries and write their content to stdout",
		Long: `Extracts the named entries using the archive's index and writes their
verified content to stdout in argument order. Entries are fetched
concurrently; only the byte ranges backing the named entries are read.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, names := args[0], args[1:]
			if indexPath == "" {
				indexPath = defaultIndexPath(archive)
			}

			store, err := sqlite.Open(indexPath)
			if err != nil {
				return err
			}
			defer store.Close()

			src, closer, err := openByteSource(archive)
			if err != nil {
				return err
			}
			defer closer.Close()

			arc, err := edzip.Open(cmd.Context(), store, src, edzip.WithLogger(newLogger()))
			if err != nil {
				return err
			}

			results := make([][]byte, len(names))
			g, ctx := errgroup.WithContext(cmd.Context())
			if parallel > 0 {
				g.SetLimit(parallel)
			}
			for i, name := range names {
				g.Go(func() error {
					content, err := arc.Extract(ctx, name)
					if err != nil {
						return err
					}
					results[i] = content
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, content := range results {
				if _, err := os.Stdout.Write(content); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&indexPath, "index", "i", "", "index file (default <archive>.edzip.sqlite3)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum concurrent extractions")
	return cmd
}
