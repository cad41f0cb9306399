package operation

import (
	"context"
	"fmt"
	"os"

	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/filestore"
)

type CreateOptions struct {
	Instance string
}

// Create provisions a fresh, empty instance: the database plus its
// empty filestore directory.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Result, error) {
	if err := filestore.ValidName(opts.Instance); err != nil {
		return nil, err
	}

	r := m.begin(OpCreate, opts.Instance)
	r.log.Info("Create started")

	if err := m.runner.CreateDB(ctx, opts.Instance); err != nil {
		return r.fail(StepCreate, err)
	}

	dir := filestore.BlobPath(m.params.FilestoreRoot, opts.Instance)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return r.fail(StepFilestore, apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to create filestore %s", dir), "Check directory permissions."))
	}
	r.log.Info("Create finished", "filestore", dir)
	return r.succeed()
}
