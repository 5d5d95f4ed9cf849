package main

import (
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/japaniel/yomiport/pkg/db"
)

func newListCmd(a *app) *cobra.Command {
	var database string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dictionaries stored in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Database
			if cmd.Flags().Changed("db") {
				path = database
			}
			if path == "" {
				return errors.New("no database configured; pass --db or set database in the config file")
			}
			conn, err := sql.Open("sqlite3", path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer conn.Close()
			if err := db.InitDB(conn); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			dicts, err := db.ListDictionaries(conn)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(dicts) == 0 {
				fmt.Fprintln(out, "No dictionaries stored.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TITLE\tREVISION\tENTRIES\tIMPORTED")
			for _, d := range dicts {
				stats, err := db.GetDictionaryStats(conn, d.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Title, d.Revision, stats, humanize.Time(d.ImportedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&database, "db", "", "SQLite database to read")
	return cmd
}
