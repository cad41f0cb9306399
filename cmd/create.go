package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/operation"
)

var createDB string

var createCmd = &cobra.Command{
	Use:           "create",
	Short:         "Create a fresh, empty instance",
	Long:          `Create a new empty database and its empty filestore directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireFlags("db", createDB); err != nil {
			return fail(err)
		}

		l := logger.FromContext(cmd.Context())
		params, err := loadParams()
		if err != nil {
			return fail(err)
		}

		oplog, err := logger.NewOperationLog(params.LogDir, "create", createDB)
		if err != nil {
			return fail(err)
		}
		defer oplog.Close()

		mgr := newManager(params, nil, l, oplog, nil)
		if _, err := mgr.Create(cmd.Context(), operation.CreateOptions{Instance: createDB}); err != nil {
			l.Error("Create failed", "instance", createDB, "log", oplog.Path(), "error", err)
			return fail(err)
		}

		l.Info("Instance created", "instance", createDB)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createDB, "db", "", "name of the new instance")
}
