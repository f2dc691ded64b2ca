package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/report"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <path> (--id N | --file NAME)...",
	Short: "Show the metadata of spectra",
	Long: `Print the stored metadata of the selected spectra, in the order they
were selected. Spectra are selected either by id or by filename.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	addSelectorFlags(showCmd)
	showCmd.Flags().Bool("json", false, "print JSON instead of text")
}

// shownSpectrum is the JSON form of one spectrum's metadata
type shownSpectrum struct {
	ID       int64    `json:"id"`
	Filename string   `json:"filename"`
	Metadata meta.Map `json:"metadata"`
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	asJSON, _ := cmd.Flags().GetBool("json")
	sel, err := selectorFromFlags(cmd)
	if err != nil {
		return err
	}

	return withLibrary(ctx, args[0], func(lib *library.Library, _ *report.EventLogger) error {
		shown, err := describe(ctx, lib, sel)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(shown)
		}
		writeShown(cmd.OutOrStdout(), shown)
		return nil
	})
}

// describe gathers id, filename and metadata of the selected spectra
func describe(ctx context.Context, lib *library.Library, sel library.Selector) ([]shownSpectrum, error) {
	ids, names := sel.IDs, sel.Filenames
	var err error
	if ids == nil {
		ids, err = lib.IDs(ctx, names)
	} else {
		names, err = lib.Filenames(ctx, ids)
	}
	if err != nil {
		return nil, err
	}

	metadata, err := lib.GetMetadata(ctx, library.ByIDs(ids...))
	if err != nil {
		return nil, err
	}

	shown := make([]shownSpectrum, len(ids))
	for i := range ids {
		shown[i] = shownSpectrum{ID: ids[i], Filename: names[i], Metadata: metadata[i]}
	}
	return shown, nil
}

func writeShown(w io.Writer, shown []shownSpectrum) {
	for i, s := range shown {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (id %d)\n", s.Filename, s.ID)
		if len(s.Metadata) == 0 {
			fmt.Fprintln(w, "  (no metadata)")
			continue
		}
		for _, field := range s.Metadata.Keys() {
			fmt.Fprintf(w, "  %-20s %s\n", field, s.Metadata[field])
		}
	}
}
