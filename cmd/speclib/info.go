package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show library statistics",
	Long: `Show what a library holds: number of spectra and metadata values,
disk usage, the metadata fields in use and where the spectra came from.

Use --report to also write the statistics as a Markdown report.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().String("report", "", "write a Markdown report to this file")
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	reportPath, _ := cmd.Flags().GetString("report")

	return withLibrary(ctx, args[0], func(lib *library.Library, _ *report.EventLogger) error {
		summary, err := lib.Summary(ctx)
		if err != nil {
			return err
		}

		util.InfoLog("=== Library %s ===", lib.Path())
		util.InfoLog("Type:            %s", summary.TypeTag)
		util.InfoLog("Unique ID:       %s", summary.UniqueID)
		util.InfoLog("Spectra:         %s", humanize.Comma(summary.Spectra))
		util.InfoLog("Metadata values: %s", humanize.Comma(summary.Values))
		util.InfoLog("Disk usage:      %s", humanize.Bytes(uint64(summary.DiskBytes)))
		if summary.MissingData > 0 {
			util.WarnLog("Missing files:   %d (run 'speclib doctor %s')", summary.MissingData, lib.Path())
		}

		if len(summary.Fields) > 0 {
			util.InfoLog("")
			util.InfoLog("Metadata fields:")
			for _, u := range summary.Fields {
				util.InfoLog("  %-24s %s", u.Name, humanize.Comma(u.Count))
			}
		}
		if len(summary.Origins) > 0 {
			util.InfoLog("")
			util.InfoLog("Origins:")
			for _, u := range summary.Origins {
				util.InfoLog("  %-24s %s", u.Name, humanize.Comma(u.Count))
			}
		}

		if reportPath != "" {
			if err := report.WriteMarkdownReport(summary, reportPath); err != nil {
				return err
			}
			util.SuccessLog("Report written to %s", reportPath)
		}
		return nil
	})
}
