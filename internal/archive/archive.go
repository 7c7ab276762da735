// Package archive extracts the two archive families the launcher deals with:
// zip packages from the application CDN and compressed tarballs from GitHub
// releases.
//
// Every failure is reported as an extraction error. Entries that would land
// outside the destination are rejected.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/progress"
)

// Format is an archive container and compression pair.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGz
	FormatTarXz
	FormatTarZst
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatTarZst:
		return "tar.zst"
	}
	return "unknown"
}

var mimeFormats = []struct {
	mime   string
	format Format
}{
	{"application/zip", FormatZip},
	{"application/gzip", FormatTarGz},
	{"application/x-xz", FormatTarXz},
	{"application/zstd", FormatTarZst},
	{"application/x-tar", FormatTar},
}

// Detect sniffs the file content to find its format. Downloaded files are
// stored under checksum names, so extensions cannot be trusted.
func Detect(path string) (Format, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return FormatUnknown, apperr.Wrap(apperr.KindExtraction, "detecting "+filepath.Base(path), err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		for _, mf := range mimeFormats {
			if m.Is(mf.mime) {
				return mf.format, nil
			}
		}
	}
	return FormatUnknown, apperr.Newf(apperr.KindExtraction, "detecting "+filepath.Base(path),
		"unsupported archive type %s", mtype.String())
}

// Extract unpacks path into dest and returns the top-level directory name
// of the first entry (empty for zip archives).
func Extract(path, dest, task string, rep progress.Reporter) (string, error) {
	format, err := Detect(path)
	if err != nil {
		return "", err
	}
	if format == FormatZip {
		return "", ExtractZip(path, dest, task, rep)
	}
	return ExtractTar(path, dest, format, task, rep)
}

// entryName normalizes an archive entry name: backslashes become slashes
// and leading slashes are dropped.
func entryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimLeft(name, "/")
}

// safeJoin joins name under dest, rejecting paths that escape it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(filepath.Clean(dest), target) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// checkResolved follows symlinks in the longest existing prefix of path
// and rejects it when the result leaves root. root must already be
// resolved.
func checkResolved(root, path string) error {
	p := path
	for {
		if _, err := os.Lstat(p); err == nil {
			break
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return err
	}
	if !within(root, real) {
		return fmt.Errorf("%s resolves outside the destination", path)
	}
	return nil
}

// checkLinkname rejects a symlink at target whose link text points
// outside root. Relative link text is resolved against the real
// directory holding the link.
func checkLinkname(root, target, linkname string) error {
	if linkname == "" || filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %s has unsafe target %q", filepath.Base(target), linkname)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil {
		return err
	}
	if !within(root, filepath.Join(dir, filepath.FromSlash(linkname))) {
		return fmt.Errorf("symlink %s points outside the destination", filepath.Base(target))
	}
	return nil
}

// topLevel returns the first path segment of an entry name.
func topLevel(name string) string {
	name = strings.TrimPrefix(entryName(name), "./")
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}
