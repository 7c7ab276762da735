package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/ulikunitz/xz"
)

// openTar opens path and layers the decompressor for format under a tar
// reader. The returned close func releases every layer.
func openTar(path string, format Format) (*tar.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	var r io.Reader
	closeAll := func() { f.Close() }

	switch format {
	case FormatTar:
		r = f
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		r = gz
		closeAll = func() { gz.Close(); f.Close() }
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("creating xz reader: %w", err)
		}
		r = xr
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		r = zr
		closeAll = func() { zr.Close(); f.Close() }
	default:
		f.Close()
		return nil, nil, fmt.Errorf("format %s is not a tarball", format)
	}
	return tar.NewReader(r), closeAll, nil
}

// ListTar counts the entries of a tarball and returns the top-level
// directory of its first entry.
func ListTar(path string, format Format) (int, string, error) {
	op := "listing " + filepath.Base(path)
	tr, closeAll, err := openTar(path, format)
	if err != nil {
		return 0, "", apperr.Wrap(apperr.KindExtraction, op, err)
	}
	defer closeAll()

	count := 0
	root := ""
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, "", apperr.Wrap(apperr.KindExtraction, op, err)
		}
		if count == 0 {
			root = topLevel(hdr.Name)
		}
		count++
	}
	if count == 0 {
		return 0, "", apperr.New(apperr.KindExtraction, op, "archive is empty")
	}
	return count, root, nil
}

// ExtractTar lists the tarball to learn its size and root folder, then
// streams every entry into dest with exact progress.
func ExtractTar(path, dest string, format Format, task string, rep progress.Reporter) (string, error) {
	if rep == nil {
		rep = progress.Nop
	}
	total, root, err := ListTar(path, format)
	if err != nil {
		return "", err
	}

	op := "extracting " + filepath.Base(path)
	tr, closeAll, err := openTar(path, format)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExtraction, op, err)
	}
	defer closeAll()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", apperr.Wrap(apperr.KindExtraction, op, err)
	}
	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExtraction, op, err)
	}

	done := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", apperr.Wrap(apperr.KindExtraction, op, err)
		}
		if err := writeTarEntry(tr, hdr, dest, realDest); err != nil {
			return "", apperr.Wrap(apperr.KindExtraction, op, err)
		}
		done++
		rep.Report(task, float64(done)/float64(total), "")
	}
	rep.Report(task, 1, "")
	return root, nil
}

func writeTarEntry(tr *tar.Reader, hdr *tar.Header, dest, realDest string) error {
	name := entryName(hdr.Name)
	if name == "" || name == "./" {
		return nil
	}
	target, err := safeJoin(dest, name)
	if err != nil {
		return err
	}
	// A directory entry may legitimately be an existing symlink; other
	// entries are checked by their parent so the entry itself is replaced.
	check := filepath.Dir(target)
	if hdr.Typeflag == tar.TypeDir {
		check = target
	}
	if err := checkResolved(realDest, check); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0755)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := checkLinkname(realDest, target, hdr.Linkname); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		source, err := safeJoin(dest, entryName(hdr.Linkname))
		if err != nil {
			return err
		}
		if err := checkResolved(realDest, filepath.Dir(source)); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Link(source, target)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0777|0600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", hdr.Name, err)
		}
		return out.Close()
	}
	// Device nodes and fifos are skipped.
	return nil
}
