package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/operation"
	"github.com/lupppig/pgpair/internal/pgcat"
	"github.com/lupppig/pgpair/internal/progress"
)

var (
	restoreDB           string
	restoreArchive      string
	restoreDropExisting bool
	restoreNoFilestore  bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore an instance from an archive",
	Long: `Restore an instance from a backup archive. The archive is validated in
full before any live resource is touched; the database is recreated from the
dump entry and the live filestore directory is replaced with the archived
tree only after the database portion succeeded.

Restoring over an existing database requires --drop-existing; without it the
operation refuses before touching anything.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireFlags("db", restoreDB, "archive", restoreArchive); err != nil {
			return fail(err)
		}

		l := logger.FromContext(cmd.Context())
		params, err := loadParams()
		if err != nil {
			return fail(err)
		}

		cat, err := pgcat.Open(cmd.Context(), params.Conn)
		if err != nil {
			return fail(err)
		}
		defer cat.Close()

		oplog, err := logger.NewOperationLog(params.LogDir, "restore", restoreDB)
		if err != nil {
			return fail(err)
		}
		defer oplog.Close()

		prog := progress.NewContainer(quiet || logJSON)
		mgr := newManager(params, cat, l, oplog, prog)
		res, err := mgr.Restore(cmd.Context(), operation.RestoreOptions{
			Instance:      restoreDB,
			ArchivePath:   restoreArchive,
			DropExisting:  restoreDropExisting,
			WithFilestore: !restoreNoFilestore,
		})
		progress.Wait(prog)
		if err != nil {
			l.Error("Restore failed", "instance", restoreDB, "log", oplog.Path(), "error", err)
			return fail(err)
		}

		l.Info("Restore complete",
			"instance", restoreDB,
			"warnings", len(res.Warnings),
			"duration", res.Duration.Truncate(time.Millisecond).String(),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreDB, "db", "", "instance to restore into")
	restoreCmd.Flags().StringVar(&restoreArchive, "archive", "", "path of the archive to restore from")
	restoreCmd.Flags().BoolVar(&restoreDropExisting, "drop-existing", false, "drop the target database first if it exists")
	restoreCmd.Flags().BoolVar(&restoreNoFilestore, "no-filestore", false, "restore the database only, leave the live filestore untouched")
}
