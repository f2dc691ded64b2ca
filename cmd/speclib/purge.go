package main

import (
	"context"
	"fmt"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <path>",
	Short: "Delete a library with all of its spectra",
	Long: `Delete every spectrum file of the library, its identity files and its
index entries. The directory is removed too when nothing else is left in
it, so the same path can be used for a new library.

This cannot be undone; --yes is required.`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().Bool("yes", false, "confirm deletion")
}

func runPurge(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return fmt.Errorf("refusing to purge %s without --yes", args[0])
	}

	return withLibrary(context.Background(), args[0], func(lib *library.Library, _ *report.EventLogger) error {
		records, err := lib.List(context.Background())
		if err != nil {
			return err
		}
		if err := lib.Purge(context.Background()); err != nil {
			return err
		}
		util.SuccessLog("Purged %s (%d spectra)", args[0], len(records))
		return nil
	})
}
