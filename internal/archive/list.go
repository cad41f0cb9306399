package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lupppig/pgpair/internal/compress"
)

// NamePatterns matches the archive file names this package writes,
// plus the .partial leftovers of interrupted writes. The retention
// sweeper uses these so foreign files in the backup dir are never
// touched.
func NamePatterns() []string {
	return []string{"*.tar", "*.tar.gz", "*.tgz", "*.tar.lz4", "*.tar.zst", "*.partial"}
}

// Info describes one archive found in the backup directory.
type Info struct {
	Path      string
	Name      string
	Instance  string
	CreatedAt time.Time
	Size      int64
	Algorithm compress.Algorithm
}

// ParseName splits a canonical archive name back into its parts. The
// instance may itself contain underscores; the timestamp is fixed-width
// at the end of the stem.
func ParseName(name string) (string, time.Time, compress.Algorithm, error) {
	algo, err := compress.DetectAlgorithm(name)
	if err != nil {
		return "", time.Time{}, "", err
	}
	stem := strings.TrimSuffix(name, ".tar"+compress.Ext(algo))
	if strings.HasSuffix(name, ".tgz") {
		stem = strings.TrimSuffix(name, ".tgz")
	}

	tsLen := len(TimestampLayout)
	if len(stem) < tsLen+2 || stem[len(stem)-tsLen-1] != '_' {
		return "", time.Time{}, "", fmt.Errorf("file name %q does not match <instance>_<timestamp>", name)
	}
	instance := stem[:len(stem)-tsLen-1]
	at, err := time.ParseInLocation(TimestampLayout, stem[len(stem)-tsLen:], time.Local)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("file name %q has a malformed timestamp", name)
	}
	return instance, at, algo, nil
}

// List returns the archives in dir, newest first. Files that do not
// follow the naming scheme are ignored; a missing dir lists nothing.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		instance, at, algo, err := ParseName(e.Name())
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Path:      filepath.Join(dir, e.Name()),
			Name:      e.Name(),
			Instance:  instance,
			CreatedAt: at,
			Size:      fi.Size(),
			Algorithm: algo,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
