package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/metrics"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// registry collects the metrics of one CLI run for --metrics-file
var registry = prometheus.NewRegistry()

var cliMetrics = sync.OnceValue(func() *metrics.Metrics {
	return metrics.New(registry)
})

func setupLogging(cmd *cobra.Command, args []string) {
	util.SetLogOutput(cmd.ErrOrStderr())
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	util.SetColors(util.IsTerminal(os.Stderr))
}

// loadConfig decodes the library settings with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (SPECLIB_*)
// 3. Config file
// 4. Default value
func loadConfig() (library.Config, error) {
	var cfg library.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Metrics = cliMetrics()
	return cfg, nil
}

// eventLevel maps the verbosity flags onto the event log level
func eventLevel() report.EventLevel {
	if viper.GetBool("quiet") {
		return report.LevelWarning // Only warnings and errors
	}
	if viper.GetBool("verbose") {
		return report.LevelDebug // Everything
	}
	return report.LevelInfo
}

// openEvents opens the event log configured by events_dir. Failures
// only cost the audit trail, so they are reported and ignored.
func openEvents() *report.EventLogger {
	dir := viper.GetString("events_dir")
	if dir == "" {
		return report.NullLogger()
	}
	logger, err := report.NewEventLogger(dir, eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s", logger.Path())
	return logger
}

// withLibrary opens the library at path, runs fn and closes it again
func withLibrary(ctx context.Context, path string, fn func(*library.Library, *report.EventLogger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	events := openEvents()
	defer events.Close()
	cfg.Events = events

	lib, err := library.Open(ctx, path, cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	return fn(lib, events)
}

func flushMetrics(cmd *cobra.Command, args []string) error {
	path := viper.GetString("metrics_file")
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// addSelectorFlags adds the --id/--file pair choosing spectra
func addSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Slice("id", nil, "select spectra by id (repeatable)")
	cmd.Flags().StringArray("file", nil, "select spectra by filename (repeatable)")
}

// selectorFromFlags builds the Selector given by --id or --file
func selectorFromFlags(cmd *cobra.Command) (library.Selector, error) {
	var sel library.Selector
	if cmd.Flags().Changed("id") {
		ids, err := cmd.Flags().GetInt64Slice("id")
		if err != nil {
			return sel, err
		}
		sel.IDs = append([]int64{}, ids...)
	}
	if cmd.Flags().Changed("file") {
		names, err := cmd.Flags().GetStringArray("file")
		if err != nil {
			return sel, err
		}
		sel.Filenames = append([]string{}, names...)
	}
	return sel, sel.Validate()
}
