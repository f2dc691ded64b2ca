package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/store"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [path]",
	Short: "Run diagnostic checks on the environment and a library",
	Long: `Run diagnostic checks to ensure speclib can operate correctly.

This command checks:
- SQLite version compatibility
- PostgreSQL connectivity (postgres flavor)
- Library identity files (type_id, unique_id)
- Index integrity and records against spectrum files
- Network filesystem detection
- Disk space availability

Use this command to troubleshoot a library before importing into it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== speclib doctor - System Diagnostics ===")
	util.InfoLog("")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := []checkResult{}

	// 1. Check SQLite
	results = append(results, checkSQLite())

	// 2. Check the database server
	if cfg.Flavor == library.FlavorPostgres {
		results = append(results, checkPostgres(cfg.Postgres.DSN))
	}

	// 3. Check the library
	if len(args) == 1 {
		path := args[0]
		results = append(results, checkSidecars(path, cfg.Flavor))
		results = append(results, checkLibrary(path, cfg))
		results = append(results, checkNetwork(path))
		results = append(results, checkDiskSpace(path, "library"))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	failed, warned := printResults(results)

	util.InfoLog("")
	switch {
	case failed > 0:
		util.ErrorLog("❌ %d check(s) failed. Fix them before using the library.", failed)
		return fmt.Errorf("%d diagnostic check(s) failed", failed)
	case warned > 0:
		util.WarnLog("⚠️  %d check(s) produced warnings.", warned)
	default:
		util.SuccessLog("✅ All checks passed!")
	}
	return nil
}

// printResults prints one line per result and counts failures and warnings
func printResults(results []checkResult) (failed, warned int) {
	for _, r := range results {
		line := r.name
		if r.message != "" {
			line += ": " + r.message
		}
		switch {
		case r.error:
			failed++
			util.ErrorLog("[✗] %s", line)
		case r.warning:
			warned++
			util.WarnLog("[⚠] %s", line)
		default:
			util.SuccessLog("[✓] %s", line)
		}
	}
	return failed, warned
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is compiled in, so only the version can be checked
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkPostgres verifies the configured server is reachable
func checkPostgres(dsn string) checkResult {
	if dsn == "" {
		return checkResult{
			name:    "PostgreSQL",
			error:   true,
			message: "no connection string (use --postgres-dsn or SPECLIB_POSTGRES_DSN)",
		}
	}

	ctx := context.Background()
	db, err := store.OpenWithOptions(ctx, dsn, &store.OpenOptions{Dialect: store.Postgres})
	if err != nil {
		return checkResult{
			name:    "PostgreSQL",
			error:   true,
			message: fmt.Sprintf("cannot connect: %v", err),
		}
	}
	defer db.Close()

	version, err := db.ServerVersion(ctx)
	if err != nil {
		return checkResult{
			name:    "PostgreSQL",
			warning: true,
			message: fmt.Sprintf("connected, version unknown: %v", err),
		}
	}
	return checkResult{
		name:    "PostgreSQL",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkSidecars verifies the identity files of the library at path
func checkSidecars(path string, flavor library.Flavor) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Identity files",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}
	if !info.IsDir() {
		return checkResult{
			name:    "Identity files",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	values := map[string]string{}
	for _, name := range []string{"type_id", "unique_id"} {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil || strings.TrimSpace(string(data)) == "" {
			return checkResult{
				name:    "Identity files",
				error:   true,
				message: fmt.Sprintf("%s is missing or empty", name),
			}
		}
		values[name] = strings.TrimSpace(string(data))
	}

	if flavor == "" {
		flavor = library.FlavorSQLite
	}
	if values["type_id"] != flavor.TypeTag() {
		return checkResult{
			name:    "Identity files",
			error:   true,
			message: fmt.Sprintf("library is a %s, configured flavor expects %s", values["type_id"], flavor.TypeTag()),
		}
	}

	return checkResult{
		name:    "Identity files",
		message: fmt.Sprintf("%s %s", values["type_id"], values["unique_id"]),
	}
}

// checkLibrary opens the library and cross-checks index and files
func checkLibrary(path string, cfg library.Config) checkResult {
	ctx := context.Background()
	lib, err := library.Open(ctx, path, cfg)
	if err != nil {
		return checkResult{
			name:    "Library",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", path, err),
		}
	}
	defer lib.Close()

	result, err := lib.Check(ctx)
	if err != nil {
		return checkResult{
			name:    "Library",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	if len(result.Missing) > 0 || len(result.Damaged) > 0 {
		return checkResult{
			name:  "Library",
			error: true,
			message: fmt.Sprintf("%d records, %d missing files, %d damaged files (first: %s)",
				result.Records, len(result.Missing), len(result.Damaged), firstOf(result.Missing, result.Damaged)),
		}
	}
	if len(result.Orphans) > 0 {
		return checkResult{
			name:    "Library",
			warning: true,
			message: fmt.Sprintf("%d records, %d spectrum files without a record (first: %s)", result.Records, len(result.Orphans), result.Orphans[0]),
		}
	}

	return checkResult{
		name:    "Library",
		message: fmt.Sprintf("%s (%s records)", path, humanize.Comma(int64(result.Records))),
	}
}

func firstOf(lists ...[]string) string {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}

// checkNetwork reports whether the library lives on a network filesystem
func checkNetwork(path string) checkResult {
	info, err := util.DetectMount(path)
	if err != nil {
		return checkResult{
			name:    "Filesystem",
			warning: true,
			message: fmt.Sprintf("cannot detect mount: %v", err),
		}
	}

	if info.IsNetwork {
		return checkResult{
			name:    "Filesystem",
			warning: true,
			message: fmt.Sprintf("%s mount at %s (network-optimized settings are used)", info.Protocol, info.MountPath),
		}
	}

	protocol := info.Protocol
	if protocol == "" {
		protocol = "local"
	}
	return checkResult{
		name:    "Filesystem",
		message: protocol,
	}
}

// checkDiskSpace warns when the filesystem holding path is nearly full
func checkDiskSpace(path string, label string) checkResult {
	name := fmt.Sprintf("Disk space (%s)", label)

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return checkResult{name: name, warning: true, message: fmt.Sprintf("cannot determine disk space: %v", err)}
	}

	blockSize := uint64(st.Bsize)
	free := st.Bavail * blockSize
	total := st.Blocks * blockSize
	message := fmt.Sprintf("%s free of %s", humanize.IBytes(free), humanize.IBytes(total))

	// Warn below 1 GiB free or above 90% used
	switch {
	case free < 1<<30:
		return checkResult{name: name, warning: true, message: message + " (low space!)"}
	case total > 0 && float64(total-st.Bfree*blockSize)/float64(total) > 0.9:
		return checkResult{name: name, warning: true, message: message + " (>90% used)"}
	}
	return checkResult{name: name, message: message}
}
