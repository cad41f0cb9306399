package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lupppig/pgpair/internal/errors"
)

func writeConf(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p, err := NewLoader(NewFlags()).Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", p.Conn.Host)
	assert.Equal(t, 5432, p.Conn.Port)
	assert.Equal(t, "postgres", p.Conn.User)
	assert.Equal(t, "", p.Conn.Password)
	assert.Equal(t, 7, p.RetentionDays)
	assert.Equal(t, 30, p.LogRetentionDays)
	assert.Equal(t, "zstd", p.Compression)
	assert.Equal(t, filepath.Join(p.DataDir, "filestore"), p.FilestoreRoot)
	assert.Equal(t, filepath.Join(p.DataDir, "backups"), p.BackupDir)
	assert.Empty(t, p.Instances)
}

func TestLoad_Precedence(t *testing.T) {
	tmpDir := t.TempDir()

	serverConf := writeConf(t, tmpDir, "server.conf", `[options]
db_host = db.internal
db_port = 6432
db_user = odoo
db_password = secret
db_name = crm_prod,crm_staging
data_dir = `+tmpDir+`
`)
	backupConf := writeConf(t, tmpDir, "backup.conf", `[backup]
backup_dir = `+filepath.Join(tmpDir, "archives")+`
backup_db_names = crm_prod
backup_retention_days = 14
compression = lz4
`)

	flags := NewFlags()
	flags.ServerConfig = serverConf
	flags.BackupConfig = backupConf
	flags.User = "override_user"

	t.Setenv("PGPAIR_DB_HOST", "env.internal")

	p, err := NewLoader(flags).Load()
	require.NoError(t, err)

	// flag > env > backup > server > default
	assert.Equal(t, "override_user", p.Conn.User)
	assert.Equal(t, "env.internal", p.Conn.Host)
	assert.Equal(t, 6432, p.Conn.Port)
	assert.Equal(t, "secret", p.Conn.Password)
	assert.Equal(t, filepath.Join(tmpDir, "archives"), p.BackupDir)
	assert.Equal(t, 14, p.RetentionDays)
	assert.Equal(t, "lz4", p.Compression)
	assert.Equal(t, filepath.Join(tmpDir, "filestore"), p.FilestoreRoot)
	assert.Equal(t, []string{"crm_prod"}, p.Instances)
}

func TestLoad_InstanceFallback(t *testing.T) {
	tmpDir := t.TempDir()

	flags := NewFlags()
	flags.ServerConfig = writeConf(t, tmpDir, "server.conf", `[options]
db_name = alpha, beta ,
`)

	p, err := NewLoader(flags).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, p.Instances)
}

func TestLoad_BadPort(t *testing.T) {
	tmpDir := t.TempDir()

	flags := NewFlags()
	flags.ServerConfig = writeConf(t, tmpDir, "server.conf", `[options]
db_port = not-a-number
`)

	_, err := NewLoader(flags).Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	flags := NewFlags()
	flags.BackupConfig = filepath.Join(t.TempDir(), "nope.conf")

	_, err := NewLoader(flags).Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestLoad_RetentionZeroDisables(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	flags := NewFlags()
	flags.RetentionDays = 0

	p, err := NewLoader(flags).Load()
	require.NoError(t, err)
	assert.Equal(t, 0, p.RetentionDays)
}

func TestWatch_Reload(t *testing.T) {
	tmpDir := t.TempDir()

	flags := NewFlags()
	flags.BackupConfig = writeConf(t, tmpDir, "backup.conf", `[backup]
backup_retention_days = 5
`)

	loader := NewLoader(flags)
	p, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, p.RetentionDays)

	changed := make(chan struct{}, 1)
	loader.Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	writeConf(t, tmpDir, "backup.conf", `[backup]
backup_retention_days = 9
`)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}

	p, err = loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9, p.RetentionDays)
}
