package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edzip/edzip"
	"github.com/edzip/edzip/store/sqlite"
)

// NewIndexCommand creates the 'index' command, which scans an archive front
// to back and writes its external directory.
func NewIndexCommand() *cobra.Command {
	var output string
	var batchSize int
	var quiet bool

	cmd := &cobra.Command{
		Use:   "index <archive>",
		Short: "Build an external directory for a ZIP archive",
		Long: `Scans the archive in a single forward pass and writes a SQLite
directory next to it. The archive may be a local file or an HTTP(S) URL;
remote archives are streamed, not downloaded to disk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := args[0]
			if output == "" {
				output = defaultIndexPath(archive)
			}

			r, err := openArchiveStream(archive)
			if err != nil {
				return err
			}
			defer r.Close()

			store, err := sqlite.Create(output)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := []edzip.BuildOption{edzip.WithBuildLogger(newLogger())}
			if batchSize > 0 {
				opts = append(opts, edzip.WithBatchSize(batchSize))
			}
			if !quiet {
				opts = append(opts, edzip.WithBuildProgress(func(ev edzip.ProgressEvent) {
					fmt.Fprintf(os.Stderr, "\r%s: %d entries, %d bytes", ev.Stage, ev.EntriesDone, ev.BytesDone)
				}))
			}

			meta, err := edzip.Build(cmd.Context(), r, store, opts...)
			if !quiet {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				// A failed build leaves an unfinalized database behind.
				os.Remove(output)
				return err
			}

			fmt.Printf("indexed %d entries (%d bytes, %s) into %s\n",
				meta.Entries, meta.ArchiveSize, meta.Digest, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "index file to write (default <archive>.edzip.sqlite3)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "entries buffered per database transaction")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}
