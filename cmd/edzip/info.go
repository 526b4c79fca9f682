package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edzip/edzip/store/sqlite"
)

// NewInfoCommand creates the 'info' command, which prints an index's build
// metadata.
func NewInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <index>",
		Short: "Show an index's build metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			meta, err := store.Meta(cmd.Context())
			if err != nil {
				return err
			}
			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("format version: %d\n", meta.Version)
			fmt.Printf("entries:        %d\n", meta.Entries)
			fmt.Printf("rows:           %d\n", count)
			fmt.Printf("archive size:   %d\n", meta.ArchiveSize)
			fmt.Printf("archive digest: %s\n", meta.Digest)
			return nil
		},
	}
	return cmd
}
