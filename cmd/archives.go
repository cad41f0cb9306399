package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/archive"
	"github.com/lupppig/pgpair/internal/logger"
)

var archivesDB string

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "List the archives in the backup directory",
	Long: `List the backup archives in the backup directory, newest first. Files
that do not follow pgpair's <instance>_<timestamp> naming are skipped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())
		params, err := loadParams()
		if err != nil {
			return fail(err)
		}

		infos, err := archive.List(params.BackupDir)
		if err != nil {
			return fail(err)
		}

		count := 0
		for _, info := range infos {
			if archivesDB != "" && info.Instance != archivesDB {
				continue
			}

			sizeStr := fmt.Sprintf("%.2f MB", float64(info.Size)/(1024*1024))
			if info.Size < 1024*1024 {
				sizeStr = fmt.Sprintf("%.2f KB", float64(info.Size)/1024)
			}

			fmt.Printf("%-20s %-25s %-10s %-6s %s\n",
				info.CreatedAt.Format("2006-01-02 15:04:05"),
				info.Instance,
				sizeStr,
				info.Algorithm,
				info.Name,
			)
			count++
		}

		if count == 0 {
			l.Info("No archives found.", "dir", params.BackupDir)
		} else {
			l.Info("Archives listed", "count", count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archivesCmd)

	archivesCmd.Flags().StringVar(&archivesDB, "db", "", "only list archives of this instance")
}
