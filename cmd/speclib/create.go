package main

import (
	"context"

	"github.com/franz/speclib/internal/library"
	"github.com/franz/speclib/internal/util"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create an empty spectrum library",
	Long: `Create a new spectrum library at path. The parent directory must exist
and path itself must not.

With the sqlite flavor the metadata index lives in <path>/index.db. With the
postgres flavor it lives in the database named by --postgres-dsn, which
many libraries can share.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	events := openEvents()
	defer events.Close()
	cfg.Events = events

	lib, err := library.Create(ctx, args[0], cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	util.SuccessLog("Created library %s", lib.Path())
	util.InfoLog("  Type: %s", lib.TypeTag())
	util.InfoLog("  Unique ID: %s", lib.UniqueID())
	return nil
}
