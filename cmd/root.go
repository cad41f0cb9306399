package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/lupppig/pgpair/internal/config"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/operation"
	"github.com/lupppig/pgpair/internal/pgtool"
)

var (
	flags   = config.NewFlags()
	logJSON bool
	noColor bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "pgpair",
	Short: "pgpair manages paired application instances: a PostgreSQL database plus its filestore directory",
	Long: `pgpair treats a PostgreSQL database and its co-located filestore directory
as one unit named after the database. It backs an instance up into a single
portable archive, restores it, duplicates it to a new name, creates and drops
it, and sweeps aged archives and operation logs by a retention policy.

Connection parameters and directories resolve in order: command-line flag,
PGPAIR_* environment, the backup config [backup] section, the server config
[options] section, built-in defaults.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		l := logger.New(logger.Config{JSON: logJSON, NoColor: noColor})
		cmd.SetContext(logger.WithContext(cmd.Context(), l))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.ServerConfig, "server-config", "", "path to the server config file (INI, [options] section)")
	pf.StringVar(&flags.BackupConfig, "backup-config", "", "path to the backup config file (INI, [backup] section)")
	pf.StringVar(&flags.Host, "db-host", "", "database server host")
	pf.IntVar(&flags.Port, "db-port", 0, "database server port")
	pf.StringVar(&flags.User, "db-user", "", "database user")
	pf.StringVar(&flags.Password, "db-password", "", "database password (prefer PGPAIR_DB_PASSWORD or the config files)")
	pf.StringVar(&flags.FilestoreRoot, "filestore-root", "", "directory holding one filestore subdirectory per instance")
	pf.StringVar(&flags.BackupDir, "backup-dir", "", "directory archives are written to and restored from")
	pf.StringVar(&flags.LogDir, "log-dir", "", "directory for per-operation diagnostic logs")
	pf.IntVar(&flags.RetentionDays, "retention-days", -1, "archives older than this many days are swept (0 disables)")
	pf.IntVar(&flags.LogRetentionDays, "log-retention-days", -1, "operation logs older than this many days are swept (0 disables)")
	pf.StringVar(&flags.Compression, "compression", "", "archive compression algorithm (gzip, lz4, zstd, none)")
	pf.BoolVar(&logJSON, "log-json", false, "emit console logs as JSON")
	pf.BoolVar(&noColor, "no-color", false, "disable colored console logs")
	pf.BoolVar(&quiet, "quiet", false, "suppress progress bars")
}

// loadParams resolves the layered configuration once for this
// invocation.
func loadParams() (config.Params, error) {
	return config.NewLoader(flags).Load()
}

// newManager wires one operation.Manager. Catalog may be nil for the
// operations that never touch the maintenance database; the caller owns
// prog and flushes it with progress.Wait once the operation returns.
func newManager(params config.Params, cat operation.Catalog, l *logger.Logger, oplog *logger.OperationLog, prog *mpb.Progress) *operation.Manager {
	return operation.NewManager(operation.Options{
		Params:   params,
		Runner:   pgtool.New(params.Conn, oplog.Writer()),
		Catalog:  cat,
		Log:      l,
		OpLog:    oplog,
		Progress: prog,
	})
}

// fail decorates an error for the CLI boundary: the apperrors hint, when
// present, rides below the cause so the operator sees what to do next.
func fail(err error) error {
	if err == nil {
		return nil
	}
	if hint := apperrors.Hint(err); hint != "" {
		return fmt.Errorf("%w\nhint: %s", err, hint)
	}
	return err
}

// requireFlags returns a Config error naming every missing flag.
func requireFlags(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			missing = append(missing, "--"+pairs[i])
		}
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.TypeConfig,
			fmt.Sprintf("required flag(s) %s not set", strings.Join(missing, ", ")), "")
	}
	return nil
}
