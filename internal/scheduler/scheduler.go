// Package scheduler runs recurring backup rounds. Tasks are persisted
// as JSON under the state directory so `pgpair schedule start` can pick
// them up after a restart; the actual work is injected as a RunFunc so
// this package stays free of operation wiring.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Task is one recurring backup round over a set of instances. An empty
// Instances list means "whatever the config resolves to at run time".
type Task struct {
	ID            string     `json:"id"`
	Instances     []string   `json:"instances,omitempty"`
	Schedule      string     `json:"schedule"` // cron spec, @-descriptor, or a plain interval like "24h"
	WithFilestore bool       `json:"with_filestore"`
	Status        Status     `json:"status"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	NextRun       *time.Time `json:"next_run,omitempty"`

	cronID cron.EntryID
}

// RunFunc executes one scheduled round.
type RunFunc func(ctx context.Context, task *Task) error

const stateFile = "schedules.json"

type Scheduler struct {
	cron     *cron.Cron
	tasks    map[string]*Task
	mu       sync.RWMutex
	stateDir string
	run      RunFunc
}

// New returns a Scheduler persisting under stateDir; an empty stateDir
// means ~/.pgpair.
func New(stateDir string) (*Scheduler, error) {
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		stateDir = filepath.Join(home, ".pgpair")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:     cron.New(),
		tasks:    make(map[string]*Task),
		stateDir: stateDir,
	}, nil
}

// SetRunFunc installs the work a firing task performs. Without one,
// firing tasks fail immediately.
func (s *Scheduler) SetRunFunc(fn RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = fn
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts firing; the returned context is done once in-flight runs
// finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Load() error {
	path := filepath.Join(s.stateDir, stateFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.tasks)
}

// Spec normalizes a task schedule for the cron parser: bare durations
// ("24h", "30m") become "@every" specs, everything else passes through.
func Spec(schedule string) string {
	if strings.HasPrefix(schedule, "@") || strings.Count(schedule, " ") >= 4 {
		return schedule
	}
	if _, err := time.ParseDuration(schedule); err == nil {
		return "@every " + schedule
	}
	return schedule
}

// Add registers a task with the cron runner and persists it.
func (s *Scheduler) Add(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(Spec(task.Schedule), func() {
		s.execute(task.ID)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", task.Schedule, err)
	}

	task.cronID = id
	task.Status = StatusPending
	s.tasks[task.ID] = task
	return s.saveLocked()
}

func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}

	s.cron.Remove(task.cronID)
	delete(s.tasks, id)
	return s.saveLocked()
}

// List returns the tasks with their next fire time filled in.
func (s *Scheduler) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Task
	for _, t := range s.tasks {
		if entry := s.cron.Entry(t.cronID); entry.Valid() {
			next := entry.Next
			t.NextRun = &next
		}
		list = append(list, t)
	}
	return list
}

func (s *Scheduler) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked persists tasks; the caller holds mu.
func (s *Scheduler) saveLocked() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.stateDir, stateFile), data, 0o600)
}

func (s *Scheduler) execute(id string) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok || task.Status == StatusRunning {
		s.mu.Unlock()
		return
	}
	run := s.run
	task.Status = StatusRunning
	now := time.Now()
	task.LastRun = &now
	s.saveLocked()
	s.mu.Unlock()

	var err error
	if run == nil {
		err = fmt.Errorf("no run function installed")
	} else {
		err = run(context.Background(), task)
	}

	s.mu.Lock()
	if err != nil {
		task.Status = StatusFailed
	} else {
		task.Status = StatusSuccess
	}
	s.saveLocked()
	s.mu.Unlock()
}
