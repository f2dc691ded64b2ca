package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/store"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <path> [--where field=value | --where field=min..max]...",
	Short: "Find spectra by metadata",
	Long: `List the spectra whose metadata satisfies every --where constraint.

  --where Teff=5000          exact match
  --where Teff=4000..6000    inclusive range, bounds in either order
  --where survey=GES         text values match exactly

Without constraints every spectrum of the library is listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringArray("where", nil, "metadata constraint (repeatable)")
	searchCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	asJSON, _ := cmd.Flags().GetBool("json")
	items, _ := cmd.Flags().GetStringArray("where")
	q, err := meta.ParseQuery(items)
	if err != nil {
		return err
	}

	return withLibrary(ctx, args[0], func(lib *library.Library, _ *report.EventLogger) error {
		records, err := lib.Search(ctx, q)
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(records)
		}
		writeRecords(cmd.OutOrStdout(), records)
		util.InfoLog("%d spectra match", len(records))
		return nil
	})
}

func writeRecords(w io.Writer, records []store.Record) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(w, "%-8s %-32s %-16s %s\n", "ID", "FILENAME", "ORIGIN", "IMPORTED")
	for _, r := range records {
		imported := "-"
		if !r.ImportTime.IsZero() {
			imported = r.ImportTime.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%-8d %-32s %-16s %s\n", r.ID, r.Filename, r.Origin, imported)
	}
}
