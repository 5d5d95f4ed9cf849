package main

import (
	"archive/zip"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/japaniel/yomiport/pkg/fetch"
	"github.com/japaniel/yomiport/pkg/yomichan"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List the members of an archive with their roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := fetch.EnsureArchive(cmd.Context(), args[0], a.cfg.CacheDir)
			if err != nil {
				return err
			}
			zr, err := zip.OpenReader(path)
			if err != nil {
				return &yomichan.ArchiveOpenError{Path: path, Err: err}
			}
			defer zr.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MEMBER\tROLE\tSIZE")
			for _, f := range zr.File {
				if f.FileInfo().IsDir() {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, yomichan.Classify(f.Name), humanize.Bytes(f.UncompressedSize64))
			}
			return tw.Flush()
		},
	}
}
