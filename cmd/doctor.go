package cmd

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/filestore"
	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/pgcat"
	"github.com/lupppig/pgpair/internal/pgtool"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the required native tools and the server are reachable",
	Long:  `Verify that the PostgreSQL client tools are present on PATH, that the server accepts connections with the resolved parameters, and that the configured directories exist.`,
	Run: func(cmd *cobra.Command, args []string) {
		l := logger.FromContext(cmd.Context())
		l.Info("pgpair doctor - System Environment Check", "os", runtime.GOOS, "arch", runtime.GOARCH)

		fmt.Println("[PostgreSQL Client Tools]")
		allOk := true
		for _, bin := range pgtool.Bins() {
			path, err := exec.LookPath(bin)
			if err != nil {
				fmt.Printf("  [ ] %-12s: NOT FOUND\n", bin)
				allOk = false
				continue
			}
			detail := path
			if v, err := pgtool.Version(cmd.Context(), bin); err == nil {
				detail = fmt.Sprintf("%s (%s)", path, v)
			}
			fmt.Printf("  [x] %-12s: %s\n", bin, detail)
		}
		fmt.Println()

		params, err := loadParams()
		if err != nil {
			fmt.Printf("[Configuration]\n  [ ] resolve      : FAILED (%v)\n", err)
			return
		}

		fmt.Println("[Server]")
		start := time.Now()
		cat, err := pgcat.Open(cmd.Context(), params.Conn)
		if err != nil {
			fmt.Printf("  [ ] %s:%d as %s: FAILED (%v)\n", params.Conn.Host, params.Conn.Port, params.Conn.User, err)
			allOk = false
		} else {
			fmt.Printf("  [x] %s:%d as %s: OK (%s)\n",
				params.Conn.Host, params.Conn.Port, params.Conn.User,
				time.Since(start).Truncate(time.Millisecond))
			cat.Close()
		}
		fmt.Println()

		fmt.Println("[Directories]")
		for _, d := range []struct{ name, path string }{
			{"filestore root", params.FilestoreRoot},
			{"backup dir", params.BackupDir},
			{"log dir", params.LogDir},
		} {
			if filestore.Exists(d.path) {
				fmt.Printf("  [x] %-14s: %s\n", d.name, d.path)
			} else {
				fmt.Printf("  [-] %-14s: %s (absent, created on first use)\n", d.name, d.path)
			}
		}
		fmt.Println()

		if allOk {
			fmt.Println("Result: All systems go! Your environment is ready for pgpair.")
		} else {
			fmt.Println("Result: Some checks failed. Install the PostgreSQL client tools and verify the connection parameters.")
		}
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
