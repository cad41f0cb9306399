// Package operation sequences the multi-step lifecycle operations over
// an instance pair: the PostgreSQL database and its filestore
// directory. Every operation is a fixed linear chain of steps. A step
// that fails aborts the whole chain immediately and the error names the
// step; completed steps are never rolled back, so a database dropped at
// step two stays dropped if step three fails. Warnings are recorded
// without changing the outcome.
package operation

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"

	"github.com/lupppig/pgpair/internal/config"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/logger"
	"github.com/lupppig/pgpair/internal/pgcat"
	"github.com/lupppig/pgpair/internal/pgtool"
)

// Op identifies a lifecycle operation.
type Op string

const (
	OpBackup    Op = "backup"
	OpRestore   Op = "restore"
	OpDuplicate Op = "duplicate"
	OpDrop      Op = "drop"
	OpCreate    Op = "create"
)

// Step names, as they appear in failure reports and the operation log.
const (
	StepWorkspace = "workspace"
	StepDump      = "dump"
	StepPackage   = "package"
	StepValidate  = "validate"
	StepExtract   = "extract"
	StepTerminate = "terminate"
	StepDrop      = "drop"
	StepPrecheck  = "precheck"
	StepCreate    = "create"
	StepApply     = "apply"
	StepCopy      = "copy"
	StepFilestore = "filestore"
)

// Runner is the slice of the client-tool runner the chains drive.
type Runner interface {
	Dump(ctx context.Context, db, outPath string) error
	Apply(ctx context.Context, db, dumpPath string) error
	CreateDB(ctx context.Context, db string) error
	DropDB(ctx context.Context, db string) error
	CopyDB(ctx context.Context, source, target string) (int64, error)
}

// Catalog is the slice of the maintenance-database client the chains
// drive. Backup and create never touch it.
type Catalog interface {
	Exists(ctx context.Context, name string) (bool, error)
	TerminateConnections(ctx context.Context, name string) (int, error)
}

var (
	_ Runner  = (*pgtool.Runner)(nil)
	_ Catalog = (*pgcat.Catalog)(nil)
)

// Result is the record of one operation run.
type Result struct {
	Op          Op
	Instance    string
	Source      string // duplicate only
	RunID       string
	ArchivePath string // backup only
	BytesCopied int64  // duplicate only
	Warnings    []string
	FailedStep  string // empty when the operation succeeded
	Duration    time.Duration
}

// Options wires one Manager. Runner is required; Catalog only for the
// operations that terminate connections or pre-check existence
// (restore, duplicate, drop). A nil OpLog discards the diagnostics
// stream, a nil Progress renders no bars.
type Options struct {
	Params   config.Params
	Runner   Runner
	Catalog  Catalog
	Log      *logger.Logger
	OpLog    *logger.OperationLog
	Progress *mpb.Progress
}

// Manager runs lifecycle operations. One Manager serves one invocation;
// it keeps no state between runs beyond its wiring.
type Manager struct {
	params   config.Params
	runner   Runner
	catalog  Catalog
	log      *logger.Logger
	oplog    *logger.OperationLog
	progress *mpb.Progress
}

func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = logger.New(logger.Config{})
	}
	return &Manager{
		params:   opts.Params,
		runner:   opts.Runner,
		catalog:  opts.Catalog,
		log:      log,
		oplog:    opts.OpLog,
		progress: opts.Progress,
	}
}

// run tracks one operation from begin to succeed or fail.
type run struct {
	m     *Manager
	res   *Result
	log   *logger.Logger
	start time.Time
}

func (m *Manager) begin(op Op, instance string) *run {
	r := &run{
		m: m,
		res: &Result{
			Op:       op,
			Instance: instance,
			RunID:    uuid.New().String(),
		},
		log:   m.log.With("op", string(op), "instance", instance),
		start: time.Now(),
	}
	m.oplog.Printf("=== %s %s (run %s)", op, instance, r.res.RunID)
	return r
}

// fail closes the run at the named step. The step rides on the Result;
// the error keeps its own type and diagnostics.
func (r *run) fail(step string, err error) (*Result, error) {
	r.res.FailedStep = step
	r.res.Duration = time.Since(r.start)
	r.m.oplog.Printf("%s failed at step %s: %v", r.res.Op, step, err)
	r.log.Error("Operation failed", "step", step, "error", err)
	return r.res, err
}

func (r *run) succeed() (*Result, error) {
	r.res.Duration = time.Since(r.start)
	r.m.oplog.Printf("%s finished in %s", r.res.Op, r.res.Duration.Truncate(time.Millisecond))
	return r.res, nil
}

// warn records a non-fatal condition on the result and both logs.
func (r *run) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.res.Warnings = append(r.res.Warnings, msg)
	r.log.Warn(msg)
	r.m.oplog.Printf("warning: %s", msg)
}

// scratch creates the run's working directory. The caller owns it and
// must remove it on every exit path.
func (m *Manager) scratch(op Op) (string, func(), error) {
	dir, err := os.MkdirTemp("", "pgpair-"+string(op)+"-*")
	if err != nil {
		return "", nil, apperrors.Wrap(err, apperrors.TypeResource,
			"failed to create scratch directory", "Check that the temp directory is writable.")
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
