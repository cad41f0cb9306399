package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vbauerster/mpb/v8"

	"github.com/lupppig/pgpair/internal/compress"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/progress"
)

func openArchive(archivePath string, bar *mpb.Bar) (*os.File, io.ReadCloser, *tar.Reader, error) {
	algo, err := compress.DetectAlgorithm(archivePath)
	if err != nil {
		return nil, nil, nil, apperrors.Wrap(err, apperrors.TypeIntegrity,
			fmt.Sprintf("%s is not an archive produced by this tool", archivePath),
			"Archive names end in .tar, .tar.gz, .tar.lz4 or .tar.zst.")
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, nil, apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("archive %s not readable", archivePath), "Check the path passed via --archive.")
	}
	cr, err := compress.NewReader(progress.NewReader(f, bar), algo)
	if err != nil {
		f.Close()
		return nil, nil, nil, apperrors.Wrap(err, apperrors.TypeIntegrity,
			fmt.Sprintf("archive %s has a corrupt compression header", archivePath), "")
	}
	return f, cr, tar.NewReader(cr), nil
}

// Validate walks the whole archive without extracting anything: every
// entry is decompressed to EOF, entry names must stay inside the
// extraction root, and exactly one dump entry must be present. Restore
// refuses to touch any live resource before this passes.
func Validate(archivePath string) error {
	f, cr, tr, err := openArchive(archivePath, nil)
	if err != nil {
		return err
	}
	defer f.Close()
	defer cr.Close()

	dumps := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.TypeIntegrity,
				fmt.Sprintf("archive %s is corrupt", archivePath),
				"The file was truncated or damaged; use a different backup.")
		}

		name, err := safeName(hdr.Name)
		if err != nil {
			return err
		}
		switch {
		case name == DumpEntry:
			dumps++
			if dumps > 1 {
				return apperrors.New(apperrors.TypeIntegrity,
					fmt.Sprintf("archive %s has multiple dump entries", archivePath), "")
			}
		case name == strings.TrimSuffix(BlobPrefix, "/") || strings.HasPrefix(name, BlobPrefix):
			// blob tree
		default:
			return apperrors.New(apperrors.TypeIntegrity,
				fmt.Sprintf("archive %s has unexpected entry %q", archivePath, hdr.Name), "")
		}

		if _, err := io.Copy(io.Discard, tr); err != nil {
			return apperrors.Wrap(err, apperrors.TypeIntegrity,
				fmt.Sprintf("archive %s is corrupt at entry %s", archivePath, name),
				"The file was truncated or damaged; use a different backup.")
		}
	}

	if dumps == 0 {
		return apperrors.ErrMissingDump
	}
	return nil
}

// Extract expands the archive under destDir. destDir must be a scratch
// location owned by the caller, never a live filestore; entries are
// still checked against escaping it.
func Extract(archivePath, destDir string, bar *mpb.Bar) error {
	f, cr, tr, err := openArchive(archivePath, bar)
	if err != nil {
		return err
	}
	defer f.Close()
	defer cr.Close()

	base := filepath.Clean(destDir)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.TypeIntegrity,
				fmt.Sprintf("archive %s is corrupt", archivePath), "")
		}

		name, err := safeName(hdr.Name)
		if err != nil {
			return err
		}
		target := filepath.Join(base, filepath.FromSlash(name))
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return apperrors.New(apperrors.TypeIntegrity,
				fmt.Sprintf("archive entry %q escapes the extraction root", hdr.Name), "")
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return apperrors.Wrap(err, apperrors.TypeResource,
					fmt.Sprintf("failed to create %s", target), "")
			}
		case tar.TypeReg:
			if err := extractFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			// symlinks and specials never belong in a bundle
		}
	}
}

func extractFile(target string, tr *tar.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to create %s", filepath.Dir(target)), "")
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to create %s", target), "")
	}
	if _, err := io.Copy(out, tr); err != nil {
		out.Close()
		return apperrors.Wrap(err, apperrors.TypeIntegrity,
			fmt.Sprintf("failed to extract %s", target), "")
	}
	return out.Close()
}

// LocateBlobRoot finds the single directory under filestore/ in an
// extracted archive. The directory's own name is whatever instance the
// backup was taken from; pairing it to the restore target is the
// caller's job. Zero or multiple candidates mean no blob root.
func LocateBlobRoot(extractedDir string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(extractedDir, strings.TrimSuffix(BlobPrefix, "/")))
	if err != nil {
		return "", false
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) != 1 {
		return "", false
	}
	return filepath.Join(extractedDir, strings.TrimSuffix(BlobPrefix, "/"), dirs[0]), true
}

// safeName normalizes a tar entry name and rejects anything that could
// land outside the extraction root.
func safeName(raw string) (string, error) {
	name := path.Clean(raw)
	if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return "", apperrors.New(apperrors.TypeIntegrity,
			fmt.Sprintf("archive entry %q escapes the extraction root", raw), "")
	}
	return name, nil
}
