package operation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"

	"github.com/lupppig/pgpair/internal/archive"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/filestore"
	"github.com/lupppig/pgpair/internal/progress"
)

type RestoreOptions struct {
	Instance      string
	ArchivePath   string
	DropExisting  bool
	WithFilestore bool
}

// Restore rebuilds an instance from an archive. The archive is
// validated in full before any live resource is touched, and the
// extracted filestore tree is swapped in only after the database
// portion succeeded. Without DropExisting an existing target fails the
// precheck step instead of surfacing whatever createdb would print.
func (m *Manager) Restore(ctx context.Context, opts RestoreOptions) (*Result, error) {
	if err := filestore.ValidName(opts.Instance); err != nil {
		return nil, err
	}
	if opts.ArchivePath == "" {
		return nil, apperrors.New(apperrors.TypeConfig,
			"no archive to restore from", "Pass the archive file via --archive.")
	}

	r := m.begin(OpRestore, opts.Instance)
	r.log.Info("Restore started",
		"archive", opts.ArchivePath, "drop_existing", opts.DropExisting, "filestore", opts.WithFilestore)

	if err := archive.Validate(opts.ArchivePath); err != nil {
		return r.fail(StepValidate, err)
	}

	scratch, cleanup, err := m.scratch(OpRestore)
	if err != nil {
		return r.fail(StepWorkspace, err)
	}
	defer cleanup()

	var bar *mpb.Bar
	if st, err := os.Stat(opts.ArchivePath); err == nil {
		bar = progress.AddSizedBar(m.progress, "extract", st.Size())
	}
	if err := archive.Extract(opts.ArchivePath, scratch, bar); err != nil {
		progress.Abort(bar)
		return r.fail(StepExtract, err)
	}
	progress.Complete(bar)

	if opts.DropExisting {
		n, err := m.catalog.TerminateConnections(ctx, opts.Instance)
		if err != nil {
			return r.fail(StepTerminate, err)
		}
		if n > 0 {
			r.log.Info("Terminated connections", "count", n)
		}
		if err := m.runner.DropDB(ctx, opts.Instance); err != nil {
			return r.fail(StepDrop, err)
		}
	} else {
		exists, err := m.catalog.Exists(ctx, opts.Instance)
		if err != nil {
			return r.fail(StepPrecheck, err)
		}
		if exists {
			return r.fail(StepPrecheck, apperrors.New(apperrors.TypeConfig,
				fmt.Sprintf("database %s already exists", opts.Instance),
				"Pass --drop-existing to replace it."))
		}
	}

	if err := m.runner.CreateDB(ctx, opts.Instance); err != nil {
		return r.fail(StepCreate, err)
	}

	if err := m.runner.Apply(ctx, opts.Instance, filepath.Join(scratch, archive.DumpEntry)); err != nil {
		return r.fail(StepApply, err)
	}

	if opts.WithFilestore {
		if src, ok := archive.LocateBlobRoot(scratch); ok {
			dst := filestore.BlobPath(m.params.FilestoreRoot, opts.Instance)
			if err := filestore.Replace(src, dst); err != nil {
				return r.fail(StepFilestore, err)
			}
			r.log.Info("Filestore replaced", "path", dst)
		} else {
			r.warn("archive %s has no usable filestore tree, restored database only",
				filepath.Base(opts.ArchivePath))
		}
	}

	r.log.Info("Restore finished")
	return r.succeed()
}
