package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/operation"
	"github.com/lupppig/pgpair/internal/pgcat"
)

var dropDB string

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop an instance: its database and its filestore directory",
	Long: `Drop both halves of an instance. Live connections to the database are
terminated first, the database is dropped, then the filestore directory is
removed. An instance that never had a filestore drops cleanly with a
warning. There is no undo.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireFlags("db", dropDB); err != nil {
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

		oplog, err := logger.NewOperationLog(params.LogDir, "drop", dropDB)
		if err != nil {
			return fail(err)
		}
		defer oplog.Close()

		mgr := newManager(params, cat, l, oplog, nil)
		if _, err := mgr.Drop(cmd.Context(), operation.DropOptions{Instance: dropDB}); err != nil {
			l.Error("Drop failed", "instance", dropDB, "log", oplog.Path(), "error", err)
			return fail(err)
		}

		l.Info("Instance dropped", "instance", dropDB)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dropCmd)

	dropCmd.Flags().StringVar(&dropDB, "db", "", "instance to drop")
}
