package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/operation"
	"github.com/lupppig/pgpair/internal/progress"
)

var (
	backupDBs         []string
	backupNoFilestore bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up one or more instances into portable archives",
	Long: `Back up each named instance: the database is dumped with pg_dump and
packaged, together with the instance's filestore directory, into a single
compressed archive in the backup directory. The archive appears under its
final name only once it is complete.

Without --db the instance list comes from the backup config
(backup_db_names) or the server config (db_name). After the backups a
retention sweep removes aged archives and operation logs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		params, err := loadParams()
		if err != nil {
			return fail(err)
		}

		instances := backupDBs
		if len(instances) == 0 {
			instances = params.Instances
		}
		if len(instances) == 0 {
			return fail(apperrors.New(apperrors.TypeConfig,
				"no instance to back up",
				"Pass --db, or set backup_db_names in the backup config or db_name in the server config."))
		}

		start := time.Now()
		var failed []string
		for _, inst := range instances {
			oplog, err := logger.NewOperationLog(params.LogDir, "backup", inst)
			if err != nil {
				return fail(err)
			}

			prog := progress.NewContainer(quiet || logJSON)
			mgr := newManager(params, nil, l, oplog, prog)
			res, err := mgr.Backup(cmd.Context(), operation.BackupOptions{
				Instance:      inst,
				WithFilestore: !backupNoFilestore,
			})
			progress.Wait(prog)
			oplog.Close()

			if err != nil {
				l.Error("Backup failed", "instance", inst, "log", oplog.Path(), "error", err)
				failed = append(failed, inst)
				continue
			}
			l.Info("Archive written", "instance", inst, "path", res.ArchivePath)
		}

		runSweep(params, l)

		if len(failed) > 0 {
			return fmt.Errorf("backup failed for %s", strings.Join(failed, ", "))
		}
		l.Info("Backup round finished",
			"instances", len(instances),
			"duration", time.Since(start).Truncate(time.Millisecond).String(),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringArrayVar(&backupDBs, "db", nil, "instance to back up (repeatable; defaults to the configured lists)")
	backupCmd.Flags().BoolVar(&backupNoFilestore, "no-filestore", false, "archive the database dump only, skip the filestore tree")
}
