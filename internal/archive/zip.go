package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/progress"
)

// ExtractZip unpacks a zip archive into dest. The central directory gives
// the entry count up front, so progress is exact.
func ExtractZip(path, dest, task string, rep progress.Reporter) error {
	if rep == nil {
		rep = progress.Nop
	}
	op := "extracting " + filepath.Base(path)

	r, err := zip.OpenReader(path)
	if err != nil {
		return apperr.Wrap(apperr.KindExtraction, op, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return apperr.Wrap(apperr.KindExtraction, op, err)
	}
	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return apperr.Wrap(apperr.KindExtraction, op, err)
	}

	total := len(r.File)
	for i, f := range r.File {
		name := entryName(f.Name)
		if name == "" {
			continue
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return apperr.Wrap(apperr.KindExtraction, op, err)
		}
		if err := checkResolved(realDest, filepath.Dir(target)); err != nil {
			return apperr.Wrap(apperr.KindExtraction, op, err)
		}

		if strings.HasSuffix(name, "/") || f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return apperr.Wrap(apperr.KindExtraction, op, err)
			}
			continue
		}
		if err := writeZipEntry(f, target); err != nil {
			return apperr.Wrap(apperr.KindExtraction, op, err)
		}
		rep.Report(task, float64(i+1)/float64(total), "")
	}
	rep.Report(task, 1, "")
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing %s: %w", f.Name, err)
	}
	return dst.Close()
}
