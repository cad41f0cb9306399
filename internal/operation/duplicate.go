package operation

import (
	"context"
	"fmt"

	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/filestore"
)

type DuplicateOptions struct {
	Source        string
	Target        string
	DropExisting  bool
	WithFilestore bool
}

// Duplicate clones one instance to a new name: the dump of the source
// streams straight into the restore of the target without an
// intermediate file, then the filestore directory is copied. Both ends
// of the pipe are checked; a pipe that moved zero bytes fails the copy
// step, since even an empty database dumps header statements.
func (m *Manager) Duplicate(ctx context.Context, opts DuplicateOptions) (*Result, error) {
	if err := filestore.ValidName(opts.Source); err != nil {
		return nil, err
	}
	if err := filestore.ValidName(opts.Target); err != nil {
		return nil, err
	}
	if opts.Source == opts.Target {
		return nil, apperrors.New(apperrors.TypeConfig,
			"source and target are the same instance", "Pick a different target name via --db.")
	}

	r := m.begin(OpDuplicate, opts.Target)
	r.res.Source = opts.Source
	r.log = r.log.With("source", opts.Source)
	r.log.Info("Duplicate started", "drop_existing", opts.DropExisting, "filestore", opts.WithFilestore)

	exists, err := m.catalog.Exists(ctx, opts.Source)
	if err != nil {
		return r.fail(StepPrecheck, err)
	}
	if !exists {
		return r.fail(StepPrecheck, apperrors.New(apperrors.TypeResource,
			fmt.Sprintf("source database %s does not exist", opts.Source),
			"Check the name passed via --from."))
	}

	if opts.DropExisting {
		if _, err := m.catalog.TerminateConnections(ctx, opts.Target); err != nil {
			return r.fail(StepTerminate, err)
		}
		if err := m.runner.DropDB(ctx, opts.Target); err != nil {
			return r.fail(StepDrop, err)
		}
	} else {
		exists, err := m.catalog.Exists(ctx, opts.Target)
		if err != nil {
			return r.fail(StepPrecheck, err)
		}
		if exists {
			return r.fail(StepPrecheck, apperrors.New(apperrors.TypeConfig,
				fmt.Sprintf("database %s already exists", opts.Target),
				"Pass --drop-existing to replace it."))
		}
	}

	if err := m.runner.CreateDB(ctx, opts.Target); err != nil {
		return r.fail(StepCreate, err)
	}

	n, err := m.runner.CopyDB(ctx, opts.Source, opts.Target)
	r.res.BytesCopied = n
	if err != nil {
		return r.fail(StepCopy, err)
	}
	if n == 0 {
		return r.fail(StepCopy, apperrors.New(apperrors.TypeIntegrity,
			fmt.Sprintf("dump of %s produced no data", opts.Source),
			"Even an empty database dumps header statements; check the source connection."))
	}
	r.log.Info("Database copied", "bytes", n)

	if opts.WithFilestore {
		src := filestore.BlobPath(m.params.FilestoreRoot, opts.Source)
		if filestore.Exists(src) {
			dst := filestore.BlobPath(m.params.FilestoreRoot, opts.Target)
			if err := filestore.Clone(src, dst); err != nil {
				return r.fail(StepFilestore, err)
			}
			r.log.Info("Filestore copied", "path", dst)
		} else {
			r.warn("source instance %s has no filestore directory, copied database only", opts.Source)
		}
	}

	r.log.Info("Duplicate finished")
	return r.succeed()
}
