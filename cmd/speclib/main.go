package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "speclib",
		Short: "Spectrum library - store, index and search spectra by metadata",
		Long: `speclib manages spectrum libraries: directories of spectrum files with a
metadata index in SQLite (one database per library) or PostgreSQL (many
libraries sharing one server). Spectra are found by exact values or ranges
of their metadata fields.`,
		Version:            Version,
		SilenceUsage:       true,
		PersistentPreRun:   setupLogging,
		PersistentPostRunE: flushMetrics,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/speclib.yaml)")
	rootCmd.PersistentFlags().String("flavor", "sqlite", "library flavor: sqlite or postgres")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL connection string (postgres flavor)")
	rootCmd.PersistentFlags().String("compression", "zstd", "spectrum file compression: none, lz4 or zstd")
	rootCmd.PersistentFlags().Int("workers", 0, "parallel spectrum decodes (0 = number of CPUs)")
	rootCmd.PersistentFlags().Bool("network-optimized", false, "force settings for network filesystems")
	rootCmd.PersistentFlags().String("events-dir", "", "directory for JSONL event logs (empty = no event log)")
	rootCmd.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("flavor", rootCmd.PersistentFlags().Lookup("flavor"))
	viper.BindPFlag("postgres.dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	viper.BindPFlag("codec.compression", rootCmd.PersistentFlags().Lookup("compression"))
	viper.BindPFlag("codec.workers", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("network_optimized", rootCmd.PersistentFlags().Lookup("network-optimized"))
	viper.BindPFlag("events_dir", rootCmd.PersistentFlags().Lookup("events-dir"))
	viper.BindPFlag("metrics_file", rootCmd.PersistentFlags().Lookup("metrics-file"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("speclib")
		viper.SetConfigType("yaml")
	}

	// SPECLIB_POSTGRES_DSN overrides postgres.dsn and so on
	viper.SetEnvPrefix("SPECLIB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage renders err with its taxonomy code and context fields
func errorMessage(err error) string {
	msg := "Error: " + err.Error()
	if code := util.CodeOf(err); code != "" {
		msg += " [" + code + "]"
	}
	ctx := util.ContextOf(err)
	for _, key := range slices.Sorted(maps.Keys(ctx)) {
		msg += fmt.Sprintf("\n  %s: %v", key, ctx[key])
	}
	return msg
}
