package operation

import (
	"context"

	"github.com/lupppig/pgpair/internal/filestore"
)

type DropOptions struct {
	Instance string
}

// Drop removes both halves of an instance: live connections are
// terminated, the database is dropped, and the filestore directory is
// deleted. An instance that never had a filestore drops cleanly with a
// warning.
func (m *Manager) Drop(ctx context.Context, opts DropOptions) (*Result, error) {
	if err := filestore.ValidName(opts.Instance); err != nil {
		return nil, err
	}

	r := m.begin(OpDrop, opts.Instance)
	r.log.Info("Drop started")

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

	dir := filestore.BlobPath(m.params.FilestoreRoot, opts.Instance)
	if filestore.Exists(dir) {
		if err := filestore.Remove(dir); err != nil {
			return r.fail(StepFilestore, err)
		}
		r.log.Info("Filestore removed", "path", dir)
	} else {
		r.warn("instance %s has no filestore directory at %s", opts.Instance, dir)
	}

	r.log.Info("Drop finished")
	return r.succeed()
}
