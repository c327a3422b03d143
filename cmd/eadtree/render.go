package main

import (
	"fmt"
	"os"

	"archive-view-go/internal/parser"
	"archive-view-go/internal/render"
	"archive-view-go/internal/tree"

	"github.com/spf13/cobra"
)

type renderFlags struct {
	collapse int
	search   string
	all      bool
	ids      bool
}

func renderCommand(opts *cliOptions) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render [file.xml]",
		Short: "Print the archive tree of an EAD file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, archives, err := opts.templates()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("collapse") {
				flags.collapse = archives.CollapseLevel
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			p, err := parser.NewXMLDatabaseParser(nil, templates)
			if err != nil {
				return err
			}
			root, err := p.ParseDocument(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			t := tree.NewArchiveTree(flags.collapse)
			t.Generate(root)
			if flags.search != "" {
				hits := t.Search(flags.search)
				fmt.Fprintf(cmd.ErrOrStderr(), "%d entries match %q\n", len(hits), flags.search)
			}
			fmt.Fprint(cmd.OutOrStdout(), render.TreeText(t, render.Options{All: flags.all, ShowIDs: flags.ids}))
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.collapse, "collapse", 1, "Hierarchy level up to which entries are expanded")
	cmd.Flags().StringVarP(&flags.search, "search", "s", "", "Only show entries matching the term and their ancestors")
	cmd.Flags().BoolVarP(&flags.all, "all", "a", false, "Show all entries regardless of collapse level")
	cmd.Flags().BoolVar(&flags.ids, "ids", false, "Print entry ids")
	return cmd
}
