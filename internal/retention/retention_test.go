package retention

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lupppig/pgpair/internal/logger"
)

var sweepNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)

func testSweeper() *Sweeper {
	return &Sweeper{
		Log: logger.New(logger.Config{Writer: io.Discard}),
		Now: func() time.Time { return sweepNow },
	}
}

func touch(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestSweep_StrictlyOlderOnly(t *testing.T) {
	dir := t.TempDir()
	cutoff := sweepNow.AddDate(0, 0, -7)

	old := "crm_2024-04-01_00-00-00.tar.gz"
	exact := "crm_2024-05-03_12-00-00.tar.gz"
	fresh := "crm_2024-05-09_00-00-00.tar.gz"
	touch(t, dir, old, cutoff.Add(-time.Minute))
	touch(t, dir, exact, cutoff)
	touch(t, dir, fresh, sweepNow.Add(-24*time.Hour))

	res, err := testSweeper().Sweep(dir, []string{"*.tar.gz"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 0, res.Failed)

	// Exactly-at-cutoff is not "strictly older" and survives.
	assert.ElementsMatch(t, []string{exact, fresh}, names(t, dir))
}

func TestSweep_LeavesNonMatchingNames(t *testing.T) {
	dir := t.TempDir()
	ancient := sweepNow.AddDate(0, -6, 0)
	touch(t, dir, "crm_2023-11-01_00-00-00.tar.zst", ancient)
	touch(t, dir, "notes.txt", ancient)
	touch(t, dir, "dump.sql", ancient)

	res, err := testSweeper().Sweep(dir, []string{"*.tar.zst", "*.tar.gz"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.ElementsMatch(t, []string{"notes.txt", "dump.sql"}, names(t, dir))
}

func TestSweep_SecondRunRemovesNothing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a_2024-01-01_00-00-00.tar", sweepNow.AddDate(0, -1, 0))
	touch(t, dir, "b_2024-05-09_00-00-00.tar", sweepNow.Add(-time.Hour))

	s := testSweeper()
	first, err := s.Sweep(dir, []string{"*.tar"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Removed)

	second, err := s.Sweep(dir, []string{"*.tar"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Removed)
	assert.Equal(t, 1, second.Kept)
}

func TestSweep_MissingDir(t *testing.T) {
	res, err := testSweeper().Sweep(filepath.Join(t.TempDir(), "absent"), []string{"*.log"}, 7)
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
}

func TestSweep_ZeroAgeDisables(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "old_2020-01-01_00-00-00.tar.gz", sweepNow.AddDate(-4, 0, 0))

	res, err := testSweeper().Sweep(dir, []string{"*.tar.gz"}, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
	assert.Len(t, names(t, dir), 1)
}

func TestSweep_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested_2020-01-01_00-00-00.tar.gz")
	require.NoError(t, os.Mkdir(sub, 0o755))
	old := sweepNow.AddDate(-1, 0, 0)
	require.NoError(t, os.Chtimes(sub, old, old))

	res, err := testSweeper().Sweep(dir, []string{"*.tar.gz"}, 7)
	require.NoError(t, err)
	assert.Zero(t, res.Removed)

	st, err := os.Stat(sub)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestSweep_MultiplePatterns(t *testing.T) {
	dir := t.TempDir()
	old := sweepNow.AddDate(0, -2, 0)
	touch(t, dir, "crm_2024-03-01_00-00-00.tar.zst", old)
	touch(t, dir, "backup_crm_2024-03-01_00-00-00.log", old)
	touch(t, dir, "crm_2024-03-01_00-00-00.tar.zst.partial", old)

	res, err := testSweeper().Sweep(dir, []string{"*.tar.zst", "*.partial"}, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.ElementsMatch(t, []string{"backup_crm_2024-03-01_00-00-00.log"}, names(t, dir))
}
