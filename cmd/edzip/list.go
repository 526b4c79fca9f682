package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edzip/edzip/store/sqlite"
)

// NewListCommand creates the 'list' command, which prints the entries
// recorded in an index in scan order.
func NewListCommand() *cobra.Command {
	var from uint64

	cmd := &cobra.Command{
		Use:   "list <index>",
		Short: "List the entries recorded in an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tMETHOD\tSIZE\tCOMPRESSED\tNAME")
			for e, err := range store.Entries(cmd.Context(), from) {
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n",
					e.Seq, e.Method, e.UncompressedSize, e.CompressedSize, e.Name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Uint64Var(&from, "from", 0, "first sequence number to list")
	return cmd
}
