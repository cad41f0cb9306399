package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "crm_prod", false},
		{"digits", "db2024", false},
		{"leading underscore", "_staging", false},
		{"dollar and dash", "crm$test-1", false},
		{"empty", "", true},
		{"leading dash", "-bad", true},
		{"spaces", "my db", true},
		{"semicolon", "db;drop", true},
		{"path traversal", "../etc", true},
		{"slash", "a/b", true},
		{"quote", `db"x`, true},
		{"too long", strings.Repeat("a", 64), true},
		{"at limit", strings.Repeat("a", 63), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBlobPath(t *testing.T) {
	root := "/var/lib/pgpair/filestore"

	assert.Equal(t, filepath.Join(root, "crm"), BlobPath(root, "crm"))

	// Distinct names must never collide.
	assert.NotEqual(t, BlobPath(root, "a"), BlobPath(root, "b"))
	// Same inputs always give the same path.
	assert.Equal(t, BlobPath(root, "a"), BlobPath(root, "a"))
}

func seedTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestReplace(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "extracted")
	dst := filepath.Join(tmp, "live", "crm")

	seedTree(t, src, map[string]string{
		"a1/b2/blob1": "new data",
		"root.bin":    "top",
	})
	seedTree(t, dst, map[string]string{
		"old/stale": "should vanish",
	})

	require.NoError(t, Replace(src, dst))

	got := readTree(t, dst)
	assert.Equal(t, map[string]string{
		"a1/b2/blob1": "new data",
		"root.bin":    "top",
	}, got)

	// Source was moved, not copied.
	assert.False(t, Exists(src))
}

func TestReplace_CreatesParent(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "extracted")
	seedTree(t, src, map[string]string{"f": "x"})

	dst := filepath.Join(tmp, "never", "seen", "crm")
	require.NoError(t, Replace(src, dst))
	assert.Equal(t, map[string]string{"f": "x"}, readTree(t, dst))
}

func TestClone(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "crm")
	dst := filepath.Join(tmp, "crm_copy")

	seedTree(t, src, map[string]string{
		"aa/blob": "payload",
	})
	seedTree(t, dst, map[string]string{
		"leftover": "should vanish",
	})

	require.NoError(t, Clone(src, dst))

	assert.Equal(t, map[string]string{"aa/blob": "payload"}, readTree(t, dst))
	// Source stays intact.
	assert.Equal(t, map[string]string{"aa/blob": "payload"}, readTree(t, src))
}

func TestClone_PreservesMode(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")

	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "script"), []byte("#!/bin/sh\n"), 0o755))

	require.NoError(t, Clone(src, dst))

	st, err := os.Stat(filepath.Join(dst, "script"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), st.Mode().Perm())
}

func TestRemove_MissingIsFine(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "absent")))
}

func TestExists(t *testing.T) {
	tmp := t.TempDir()
	assert.True(t, Exists(tmp))
	assert.False(t, Exists(filepath.Join(tmp, "missing")))

	// A plain file is not a filestore directory.
	f := filepath.Join(tmp, "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.False(t, Exists(f))
}
