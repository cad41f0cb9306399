package operation

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lupppig/pgpair/internal/archive"
	"github.com/lupppig/pgpair/internal/compress"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/filestore"
	"github.com/lupppig/pgpair/internal/progress"
)

type BackupOptions struct {
	Instance      string
	WithFilestore bool
}

// Backup dumps the database into the run's scratch directory and
// packages it, together with the instance's filestore tree when
// requested, into an archive in the configured backup directory. The
// archive appears under its final name only after the whole bundle is
// committed. A missing filestore directory degrades to a database-only
// archive with a warning.
func (m *Manager) Backup(ctx context.Context, opts BackupOptions) (*Result, error) {
	if err := filestore.ValidName(opts.Instance); err != nil {
		return nil, err
	}
	algo, err := compress.Parse(m.params.Compression)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig,
			fmt.Sprintf("invalid compression algorithm %q", m.params.Compression),
			"Supported values are gzip, lz4, zstd and none.")
	}

	r := m.begin(OpBackup, opts.Instance)
	r.log.Info("Backup started", "filestore", opts.WithFilestore, "compression", string(algo))

	scratch, cleanup, err := m.scratch(OpBackup)
	if err != nil {
		return r.fail(StepWorkspace, err)
	}
	defer cleanup()

	dumpPath := filepath.Join(scratch, archive.DumpEntry)
	if err := m.runner.Dump(ctx, opts.Instance, dumpPath); err != nil {
		return r.fail(StepDump, err)
	}

	blobDir := ""
	if opts.WithFilestore {
		blobDir = filestore.BlobPath(m.params.FilestoreRoot, opts.Instance)
	}

	bar := progress.AddTransferBar(m.progress, "package")
	h, err := archive.Write(archive.WriteOptions{
		Instance:  opts.Instance,
		DumpPath:  dumpPath,
		BlobDir:   blobDir,
		DestDir:   m.params.BackupDir,
		Algorithm: algo,
		Bar:       bar,
	})
	if err != nil {
		progress.Abort(bar)
		return r.fail(StepPackage, err)
	}
	progress.Complete(bar)

	for _, w := range h.Warnings {
		r.warn("%s", w)
	}
	r.res.ArchivePath = h.Path

	r.log.Info("Backup finished", "archive", h.Path, "size", h.Size)
	return r.succeed()
}
