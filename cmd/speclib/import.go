package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/franz/speclib/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultBatchSize = 100

var importCmd = &cobra.Command{
	Use:   "import <path> <file>...",
	Short: "Import text spectra into a library",
	Long: `Import whitespace-separated text spectra (wavelength, value and an
optional error column) into a library.

Comment lines of the form "# field = value" become metadata of the
spectrum; --meta values are applied on top and win on conflicts. Each
spectrum is stored under the base name of its source file.

Without --overwrite, files whose name is already taken are skipped and
reported; with it they replace the stored spectrum and its metadata.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("origin", library.DefaultOrigin, "provenance label recorded with each spectrum")
	importCmd.Flags().StringArray("meta", nil, "metadata field=value applied to every spectrum (repeatable)")
	importCmd.Flags().Bool("overwrite", false, "replace spectra whose filename is taken")
	importCmd.Flags().Int("batch", defaultBatchSize, "spectra per insert batch")
}

// source is one parsed input file
type source struct {
	path     string
	filename string
	spectrum *spectrum.Spectrum
}

// importResult counts the outcome of an import run
type importResult struct {
	Inserted int
	Skipped  []string
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	origin, _ := cmd.Flags().GetString("origin")
	items, _ := cmd.Flags().GetStringArray("meta")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	batchSize, _ := cmd.Flags().GetInt("batch")
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	override, err := meta.ParseAssignments(items)
	if err != nil {
		return err
	}

	workers := viper.GetInt("codec.workers")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	startTime := time.Now()
	sources, err := parseSources(args[1:], workers)
	if err != nil {
		return err
	}
	util.InfoLog("Parsed %d spectra in %v", len(sources), time.Since(startTime).Round(time.Millisecond))

	return withLibrary(ctx, args[0], func(lib *library.Library, events *report.EventLogger) error {
		opts := library.InsertOptions{Origin: origin, Overwrite: overwrite}
		result, err := importSources(ctx, lib, events, sources, override, opts, batchSize)
		if err != nil {
			return err
		}

		util.SuccessLog("Imported %d spectra into %s in %v",
			result.Inserted, lib.Path(), time.Since(startTime).Round(time.Millisecond))
		if len(result.Skipped) > 0 {
			util.WarnLog("Skipped %d existing spectra (use --overwrite to replace them)", len(result.Skipped))
		}
		return nil
	})
}

// parseSources reads every text spectrum on a bounded worker pool,
// keeping the input order. Inputs sharing a base name are rejected
// before anything is read.
func parseSources(paths []string, workers int) ([]source, error) {
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		if first, ok := seen[name]; ok {
			return nil, util.Fail(util.ErrPrecondition, []any{"filename", name},
				"%s and %s would both be stored as %q", first, path, name)
		}
		seen[name] = path
	}

	sources := make([]source, len(paths))
	p := pool.New().WithErrors().WithMaxGoroutines(workers)
	for i, path := range paths {
		p.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			s, err := spectrum.ParseText(f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			sources[i] = source{path: path, filename: filepath.Base(path), spectrum: s}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

// importSources inserts sources in batches. Name collisions skip the
// offending spectrum and carry on with the rest of its batch.
func importSources(ctx context.Context, lib *library.Library, events *report.EventLogger, sources []source, override meta.Map, opts library.InsertOptions, batchSize int) (*importResult, error) {
	result := &importResult{}

	var bar *progressbar.ProgressBar
	if util.ShowProgress(os.Stderr) {
		bar = progressbar.NewOptions(len(sources),
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("spectra"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	for start := 0; start < len(sources); start += batchSize {
		pending := sources[start:min(start+batchSize, len(sources))]

		for len(pending) > 0 {
			spectra := make([]*spectrum.Spectrum, len(pending))
			names := make([]string, len(pending))
			var metadata []meta.Map
			if len(override) > 0 {
				metadata = make([]meta.Map, len(pending))
			}
			for i, src := range pending {
				spectra[i] = src.spectrum
				names[i] = src.filename
				if metadata != nil {
					metadata[i] = override
				}
			}

			ids, err := lib.Insert(ctx, spectra, names, metadata, opts)
			for i, id := range ids {
				logImport(events, lib, pending[i], id)
			}
			result.Inserted += len(ids)
			done := len(ids)

			if err != nil {
				if !errors.Is(err, util.ErrCollision) {
					return result, err
				}
				util.WarnLog("Skipping %s: %v", names[len(ids)], err)
				result.Skipped = append(result.Skipped, names[len(ids)])
				done++
			}
			if bar != nil {
				bar.Add(done)
			}
			pending = pending[done:]
		}
	}
	return result, nil
}

func logImport(events *report.EventLogger, lib *library.Library, src source, id int64) {
	if events.Path() == "" {
		return
	}
	digest, err := util.FileDigest(src.path)
	if err != nil {
		util.DebugLog("Failed to hash %s: %v", src.path, err)
		return
	}
	events.LogImport(lib.UniqueID(), src.filename, src.path, digest, id)
}
