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
	duplicateFrom         string
	duplicateDB           string
	duplicateDropExisting bool
	duplicateNoFilestore  bool
)

var duplicateCmd = &cobra.Command{
	Use:   "duplicate",
	Short: "Duplicate an instance under a new name",
	Long: `Duplicate one instance to a new name. The dump of the source streams
directly into the restore of the target without an intermediate file, then
the filestore directory is copied. The source is left untouched.

Duplicating onto an existing database requires --drop-existing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireFlags("from", duplicateFrom, "db", duplicateDB); err != nil {
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

		oplog, err := logger.NewOperationLog(params.LogDir, "duplicate", duplicateDB)
		if err != nil {
			return fail(err)
		}
		defer oplog.Close()

		prog := progress.NewContainer(quiet || logJSON)
		mgr := newManager(params, cat, l, oplog, prog)
		res, err := mgr.Duplicate(cmd.Context(), operation.DuplicateOptions{
			Source:        duplicateFrom,
			Target:        duplicateDB,
			DropExisting:  duplicateDropExisting,
			WithFilestore: !duplicateNoFilestore,
		})
		progress.Wait(prog)
		if err != nil {
			l.Error("Duplicate failed", "source", duplicateFrom, "target", duplicateDB, "log", oplog.Path(), "error", err)
			return fail(err)
		}

		l.Info("Duplicate complete",
			"source", duplicateFrom,
			"target", duplicateDB,
			"bytes", res.BytesCopied,
			"duration", res.Duration.Truncate(time.Millisecond).String(),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(duplicateCmd)

	duplicateCmd.Flags().StringVar(&duplicateFrom, "from", "", "instance to duplicate")
	duplicateCmd.Flags().StringVar(&duplicateDB, "db", "", "name of the new instance")
	duplicateCmd.Flags().BoolVar(&duplicateDropExisting, "drop-existing", false, "drop the target database first if it exists")
	duplicateCmd.Flags().BoolVar(&duplicateNoFilestore, "no-filestore", false, "copy the database only, skip the filestore directory")
}
