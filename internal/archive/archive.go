// Package archive implements the portable backup container: a tar
// stream compressed as a whole, holding exactly one database dump entry
// and an optional blob tree under a fixed prefix. Archives are
// immutable once written; a bundle that cannot be completed never
// appears under its final name.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"

	"github.com/lupppig/pgpair/internal/compress"
	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/progress"
)

const (
	// DumpEntry is the database dump's entry name inside every archive.
	DumpEntry = "dump.sql"
	// BlobPrefix is the directory prefix the blob tree lives under.
	BlobPrefix = "filestore/"
	// TimestampLayout names archives sortably down to the second.
	TimestampLayout = "2006-01-02_15-04-05"

	partialSuffix = ".partial"
)

// FileName builds the canonical archive name for an instance.
func FileName(instance string, algo compress.Algorithm, at time.Time) string {
	return fmt.Sprintf("%s_%s.tar%s", instance, at.Format(TimestampLayout), compress.Ext(algo))
}

type WriteOptions struct {
	Instance  string
	DumpPath  string
	BlobDir   string // empty means database-only
	DestDir   string
	Algorithm compress.Algorithm
	At        time.Time
	Bar       *mpb.Bar
}

// Handle describes a written archive.
type Handle struct {
	Path     string
	Size     int64
	Warnings []string
}

// Write packages the dump and blob tree into a new archive. The stream
// goes to a .partial file first and is renamed only after everything,
// including the fsync, succeeded; a missing blob dir degrades to a
// database-only archive with a warning rather than failing the backup.
func Write(opts WriteOptions) (*Handle, error) {
	if _, err := os.Stat(opts.DumpPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeArchive,
			fmt.Sprintf("dump file %s not readable", opts.DumpPath), "")
	}
	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeArchive,
			fmt.Sprintf("failed to create backup dir %s", opts.DestDir), "Check directory permissions.")
	}

	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	final := filepath.Join(opts.DestDir, FileName(opts.Instance, opts.Algorithm, at))
	tmp := final + partialSuffix

	h := &Handle{Path: final}
	if err := writeBundle(tmp, opts, h); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, apperrors.Wrap(err, apperrors.TypeArchive, "failed to finalize archive", "")
	}
	if st, err := os.Stat(final); err == nil {
		h.Size = st.Size()
	}
	return h, nil
}

func writeBundle(tmp string, opts WriteOptions, h *Handle) error {
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive,
			fmt.Sprintf("failed to create %s", tmp), "Check directory permissions.")
	}
	defer f.Close()

	cw, err := compress.NewWriter(f, opts.Algorithm)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, "failed to initialize compressor", "")
	}
	tw := tar.NewWriter(cw)

	if err := addFile(tw, DumpEntry, opts.DumpPath, opts.Bar); err != nil {
		return err
	}

	if opts.BlobDir != "" {
		if st, err := os.Stat(opts.BlobDir); err != nil || !st.IsDir() {
			h.Warnings = append(h.Warnings,
				fmt.Sprintf("filestore directory %s does not exist, archive is database-only", opts.BlobDir))
		} else {
			prefix := BlobPrefix + filepath.Base(opts.BlobDir)
			if err := addTree(tw, prefix, opts.BlobDir, opts.Bar); err != nil {
				return err
			}
		}
	}

	if err := tw.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, "failed to finish tar stream", "")
	}
	if err := cw.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, "failed to finish compressed stream", "")
	}
	if err := f.Sync(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, "failed to sync archive", "")
	}
	return f.Close()
}

func addFile(tw *tar.Writer, name, src string, bar *mpb.Bar) error {
	info, err := os.Stat(src)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, fmt.Sprintf("failed to stat %s", src), "")
	}
	hdr := &tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, fmt.Sprintf("failed to write entry %s", name), "")
	}

	in, err := os.Open(src)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, fmt.Sprintf("failed to open %s", src), "")
	}
	defer in.Close()

	if _, err := io.Copy(tw, progress.NewReader(in, bar)); err != nil {
		return apperrors.Wrap(err, apperrors.TypeArchive, fmt.Sprintf("failed to archive %s", src), "")
	}
	return nil
}

// addTree stores every directory and regular file under root below
// prefix. Directory headers are written too, so empty trees survive the
// round trip.
func addTree(tw *tar.Writer, prefix, root string, bar *mpb.Bar) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return apperrors.Wrap(err, apperrors.TypeArchive,
				fmt.Sprintf("failed to walk filestore at %s", p), "")
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			hdr := &tar.Header{
				Name:     name + "/",
				Typeflag: tar.TypeDir,
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return apperrors.Wrap(err, apperrors.TypeArchive,
					fmt.Sprintf("failed to write entry %s", name), "")
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return addFile(tw, name, p, bar)
	})
}
