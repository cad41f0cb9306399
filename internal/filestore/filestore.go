// Package filestore handles the blob directory half of an instance. The
// pairing with the database is purely by convention: the directory under
// the filestore root always carries the database's name.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	apperrors "github.com/lupppig/pgpair/internal/errors"
)

// namePattern matches the identifiers PostgreSQL accepts unquoted, minus
// anything that could escape a path or a command line.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_$-]*$`)

const maxNameLen = 63 // engine identifier limit in bytes

// ValidName rejects instance names that are unsafe as database
// identifiers or as path components.
func ValidName(name string) error {
	if name == "" {
		return apperrors.New(apperrors.TypeConfig, "instance name is empty", "Pass a database name via --db.")
	}
	if len(name) > maxNameLen {
		return apperrors.New(apperrors.TypeConfig,
			fmt.Sprintf("instance name %q exceeds %d bytes", name, maxNameLen),
			"PostgreSQL truncates longer identifiers; pick a shorter name.")
	}
	if !namePattern.MatchString(name) {
		return apperrors.New(apperrors.TypeConfig,
			fmt.Sprintf("instance name %q contains invalid characters", name),
			"Names start with a letter, digit or underscore and may contain letters, digits, _, $ and -.")
	}
	return nil
}

// BlobPath returns the blob directory for an instance. Distinct names
// always map to distinct paths.
func BlobPath(root, name string) string {
	return filepath.Join(root, name)
}

// Exists reports whether dir is an existing directory.
func Exists(dir string) bool {
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}

// Remove deletes the blob directory and everything under it.
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to remove filestore %s", dir), "Check directory permissions.")
	}
	return nil
}

// Replace swaps dst with src: the old tree is removed first, then src is
// moved into place. src is typically on a different filesystem (a
// scratch dir), so a failed rename falls back to copying.
func Replace(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to clear filestore %s", dst), "Check directory permissions.")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to create filestore root %s", filepath.Dir(dst)), "")
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// Clone copies src to dst, removing any previous dst first. src is left
// untouched.
func Clone(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to clear filestore %s", dst), "Check directory permissions.")
	}
	return copyTree(src, dst)
}

// copyTree copies directories and regular files, preserving relative
// structure and file modes. Other entry types are skipped.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
