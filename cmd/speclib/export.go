package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <path> (--id N | --file NAME)...",
	Short: "Write spectra back out as text",
	Long: `Load the selected spectra and write each one as a text spectrum
(wavelength, value and error columns, metadata as "# field = value"
comments) into the output directory, named <filename>.txt.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	addSelectorFlags(exportCmd)
	exportCmd.Flags().StringP("out", "o", ".", "output directory")
	exportCmd.Flags().Bool("shared", false, "load through shared memory")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outDir, _ := cmd.Flags().GetString("out")
	shared, _ := cmd.Flags().GetBool("shared")
	sel, err := selectorFromFlags(cmd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return withLibrary(ctx, args[0], func(lib *library.Library, _ *report.EventLogger) error {
		names := sel.Filenames
		if names == nil {
			var err error
			if names, err = lib.Filenames(ctx, sel.IDs); err != nil {
				return err
			}
		}

		arr, err := lib.Open(ctx, sel, library.OpenOptions{SharedMemory: shared})
		if err != nil {
			return err
		}
		defer arr.Release()

		for i := 0; i < arr.Len(); i++ {
			path := filepath.Join(outDir, exportName(names[i]))
			if err := writeTextFile(path, arr.Item(i)); err != nil {
				return err
			}
			util.DebugLog("Exported %s", path)
		}
		util.SuccessLog("Exported %d spectra to %s", arr.Len(), outDir)
		return nil
	})
}

// exportName maps a stored filename to its text file name
func exportName(filename string) string {
	name := strings.TrimSpace(filename)
	if strings.HasSuffix(name, ".txt") {
		return name
	}
	return name + ".txt"
}

func writeTextFile(path string, s *spectrum.Spectrum) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := spectrum.WriteText(f, s); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
