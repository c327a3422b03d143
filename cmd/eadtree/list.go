package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"archive-view-go/internal/parser"

	"github.com/spf13/cobra"
)

func listCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [directory]",
		Short: "List EAD resources in a directory laid out as <database>/<resource>.xml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				archives, err := opts.archivesConfig()
				if err != nil {
					return err
				}
				dir = archives.File.Directory
			}
			source, err := parser.NewFileSource(dir)
			if err != nil {
				return err
			}
			resources, err := source.ListResources(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATABASE\tRESOURCE\tMODIFIED")
			for _, r := range resources {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.DatabaseName, r.ResourceName, r.LastModified.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}
