package main

import (
	"context"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <path> (--id N | --file NAME)... --meta field=value...",
	Short: "Set metadata on spectra",
	Long: `Write metadata values onto every selected spectrum. Values that parse
as numbers are stored as numbers, everything else as text. Fields not
named keep their current values; new fields are registered on first use.`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)

	addSelectorFlags(setCmd)
	setCmd.Flags().StringArray("meta", nil, "metadata field=value (repeatable)")
	setCmd.MarkFlagRequired("meta")
}

func runSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sel, err := selectorFromFlags(cmd)
	if err != nil {
		return err
	}
	items, _ := cmd.Flags().GetStringArray("meta")
	values, err := meta.ParseAssignments(items)
	if err != nil {
		return err
	}

	return withLibrary(ctx, args[0], func(lib *library.Library, _ *report.EventLogger) error {
		if err := lib.SetMetadata(ctx, sel, values); err != nil {
			return err
		}
		util.SuccessLog("Set %d field(s) on %d spectra", len(values), sel.Len())
		return nil
	})
}
