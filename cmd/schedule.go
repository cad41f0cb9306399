package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lupppig/pgpair/internal/config"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/operation"
	"github.com/lupppig/pgpair/internal/scheduler"
)

var (
	scheduleCron        string
	scheduleInterval    string
	scheduleDBs         []string
	scheduleNoFilestore bool
	daemonMode          bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring backup rounds",
}

var scheduleAddCmd = &cobra.Command{
	Use:           "add",
	Short:         "Add a recurring backup round",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		sched := scheduleCron
		if scheduleInterval != "" {
			sched = scheduleInterval
		}
		if sched == "" {
			return fail(apperrors.New(apperrors.TypeConfig,
				"either --cron or --interval is required", ""))
		}

		s, err := scheduler.New("")
		if err != nil {
			return fail(err)
		}
		if err := s.Load(); err != nil {
			return fail(err)
		}

		task := &scheduler.Task{
			ID:            uuid.New().String(),
			Instances:     scheduleDBs,
			Schedule:      sched,
			WithFilestore: !scheduleNoFilestore,
		}
		if err := s.Add(task); err != nil {
			return fail(err)
		}

		l.Info("Scheduled backup round added", "schedule", sched, "id", task.ID)

		if !daemonMode {
			return spawnDaemon(l)
		}
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:           "list",
	Short:         "List all scheduled backup rounds",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		s, err := scheduler.New("")
		if err != nil {
			return fail(err)
		}
		if err := s.Load(); err != nil {
			return fail(err)
		}

		tasks := s.List()
		if len(tasks) == 0 {
			l.Info("No schedules found")
			return nil
		}

		for _, t := range tasks {
			next := "N/A"
			if t.NextRun != nil {
				next = t.NextRun.Format("2006-01-02 15:04:05")
			}
			instances := "from config"
			if len(t.Instances) > 0 {
				instances = fmt.Sprint(t.Instances)
			}
			l.Info("Scheduled round",
				"id", t.ID,
				"instances", instances,
				"status", string(t.Status),
				"schedule", t.Schedule,
				"next_run", next,
			)
		}
		return nil
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:           "remove [ID]",
	Short:         "Remove a scheduled backup round",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		s, err := scheduler.New("")
		if err != nil {
			return fail(err)
		}
		if err := s.Load(); err != nil {
			return fail(err)
		}
		if err := s.Remove(args[0]); err != nil {
			return fail(err)
		}

		l.Info("Schedule removed", "id", args[0])
		return nil
	},
}

var scheduleStartCmd = &cobra.Command{
	Use:           "start",
	Short:         "Start the schedule daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.FromContext(cmd.Context())

		loader := config.NewLoader(flags)
		params, err := loader.Load()
		if err != nil {
			return fail(err)
		}

		// The daemon runs for days; rewriting the backup config must
		// take effect on the next firing without a restart.
		var mu sync.Mutex
		loader.Watch(func() {
			p, err := loader.Load()
			if err != nil {
				l.Warn("Config change ignored", "error", err)
				return
			}
			mu.Lock()
			params = p
			mu.Unlock()
			l.Info("Config reloaded")
		})

		s, err := scheduler.New("")
		if err != nil {
			return fail(err)
		}
		if err := s.Load(); err != nil {
			return fail(err)
		}

		s.SetRunFunc(func(ctx context.Context, task *scheduler.Task) error {
			mu.Lock()
			p := params
			mu.Unlock()
			return runScheduledRound(ctx, p, l, task)
		})

		tasks := s.List()
		l.Info("Starting schedule daemon", "task_count", len(tasks))
		for _, t := range tasks {
			if err := s.Add(t); err != nil {
				l.Warn("Failed to schedule round", "id", t.ID, "error", err)
			}
		}

		s.Start()
		defer s.Stop()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		l.Info("Shutting down schedule daemon")
		return nil
	},
}

// runScheduledRound is one firing: back up every instance of the task
// (or the configured lists), then sweep.
func runScheduledRound(ctx context.Context, params config.Params, l *logger.Logger, task *scheduler.Task) error {
	instances := task.Instances
	if len(instances) == 0 {
		instances = params.Instances
	}
	if len(instances) == 0 {
		return apperrors.New(apperrors.TypeConfig,
			"scheduled round has no instances",
			"Set backup_db_names in the backup config or re-add the schedule with --db.")
	}

	var firstErr error
	for _, inst := range instances {
		oplog, err := logger.NewOperationLog(params.LogDir, "backup", inst)
		if err != nil {
			return err
		}

		mgr := newManager(params, nil, l.With("schedule", task.ID), oplog, nil)
		res, err := mgr.Backup(ctx, operation.BackupOptions{
			Instance:      inst,
			WithFilestore: task.WithFilestore,
		})
		oplog.Close()

		if err != nil {
			l.Error("Scheduled backup failed", "schedule", task.ID, "instance", inst, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		l.Info("Scheduled backup finished", "schedule", task.ID, "instance", inst, "archive", res.ArchivePath)
	}

	runSweep(params, l)
	return firstErr
}

func spawnDaemon(l *logger.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Run `pgpair schedule start` detached from the terminal.
	cmd := exec.Command(exe, "schedule", "start", "--daemon")
	cmd.Dir = filepath.Dir(exe)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	l.Info("Schedule daemon started", "pid", cmd.Process.Pid)
	return nil
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)

	scheduleAddCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron schedule (e.g. \"0 2 * * *\")")
	scheduleAddCmd.Flags().StringVar(&scheduleInterval, "interval", "", "interval schedule (e.g. \"24h\", \"30m\")")
	scheduleAddCmd.Flags().StringArrayVar(&scheduleDBs, "db", nil, "instance to back up (repeatable; defaults to the configured lists at run time)")
	scheduleAddCmd.Flags().BoolVar(&scheduleNoFilestore, "no-filestore", false, "archive the database dumps only")

	scheduleStartCmd.Flags().BoolVar(&daemonMode, "daemon", false, "run in daemon mode (internal)")
	scheduleStartCmd.Flags().MarkHidden("daemon")
	scheduleAddCmd.Flags().BoolVar(&daemonMode, "daemon", false, "do not spawn the background daemon")
	scheduleAddCmd.Flags().MarkHidden("daemon")
}
