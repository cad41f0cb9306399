package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/archive"
	"github.com/lupppig/pgpair/internal/config"
	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/retention"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove archives and operation logs older than the retention ages",
	Long: `Delete backup archives older than --retention-days and operation logs
older than --log-retention-days from their directories. The same sweep runs
automatically after every backup round; this command runs it on its own.
Files that do not follow pgpair's naming are never touched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := loadParams()
		if err != nil {
			return fail(err)
		}
		runSweep(params, logger.FromContext(cmd.Context()))
		return nil
	},
}

// runSweep prunes aged archives and operation logs. Best-effort: sweep
// problems are logged, never escalated, so a full disk of old archives
// cannot turn a successful backup round into a failure.
func runSweep(params config.Params, l *logger.Logger) {
	s := &retention.Sweeper{Log: l}

	res, err := s.Sweep(params.BackupDir, archive.NamePatterns(), params.RetentionDays)
	if err != nil {
		l.Warn("Archive sweep failed", "dir", params.BackupDir, "error", err)
	} else if res.Removed > 0 || res.Failed > 0 {
		l.Info("Archive sweep finished", "removed", res.Removed, "kept", res.Kept, "failed", res.Failed)
	}

	res, err = s.Sweep(params.LogDir, []string{logger.OpLogPattern}, params.LogRetentionDays)
	if err != nil {
		l.Warn("Log sweep failed", "dir", params.LogDir, "error", err)
	} else if res.Removed > 0 || res.Failed > 0 {
		l.Info("Log sweep finished", "removed", res.Removed, "kept", res.Kept, "failed", res.Failed)
	}
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
