// Package installer materializes an application version on disk from its
// package manifest.
//
// Packages are downloaded into a cache keyed by checksum, so versions that
// share packages download them once. A version is assembled in a hidden
// partial directory and renamed into place only after every package is
// extracted; an existing version directory is therefore always complete.
package installer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/archive"
	"github.com/rsjfw/rsjfw/internal/manifest"
	"github.com/rsjfw/rsjfw/internal/progress"
	"go.uber.org/zap"
)

// Task is the progress task name used by Install.
const Task = "install"

// Downloader streams a URL to a file.
type Downloader interface {
	Download(ctx context.Context, url, dest, task string, rep progress.Reporter) error
}

// Installer installs application versions below an application-data root.
type Installer struct {
	layout appdata.Layout
	dl     Downloader
	cdn    string
	log    *zap.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Installer) {
		i.log = l
	}
}

// New creates an Installer downloading packages from cdnBase.
func New(layout appdata.Layout, dl Downloader, cdnBase string, opts ...Option) *Installer {
	i := &Installer{layout: layout, dl: dl, cdn: cdnBase, log: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IsInstalled reports whether versionID has a complete install directory.
func (i *Installer) IsInstalled(versionID string) bool {
	return appdata.IsDir(i.layout.Version(versionID))
}

// Install downloads and unpacks every package of m. It is a no-op when the
// version is already installed.
func (i *Installer) Install(ctx context.Context, m *manifest.Manifest, sink progress.Sink) error {
	if i.IsInstalled(m.Version) {
		sink.Finish(Task, "Already installed")
		return nil
	}

	sink.Begin(Task, fmt.Sprintf("Installing %s (%s)", m.Version, humanize.Bytes(uint64(m.TotalPackedSize()))))
	partial := filepath.Join(i.layout.Versions(), "."+m.Version+".partial")
	if err := os.RemoveAll(partial); err != nil {
		return fmt.Errorf("clearing stale partial install: %w", err)
	}
	if err := os.MkdirAll(partial, appdata.DirPermNormal); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}
	if err := os.MkdirAll(i.layout.Downloads(), appdata.DirPermNormal); err != nil {
		return fmt.Errorf("creating download cache: %w", err)
	}

	if err := i.assemble(ctx, m, partial, sink); err != nil {
		os.RemoveAll(partial)
		return err
	}
	if err := os.Rename(partial, i.layout.Version(m.Version)); err != nil {
		os.RemoveAll(partial)
		return fmt.Errorf("finalizing install of %s: %w", m.Version, err)
	}
	sink.Report(Task, 1, "")

	i.log.Info("installed version", zap.String("version", m.Version), zap.Int("packages", len(m.Packages)))
	sink.Finish(Task, fmt.Sprintf("Installed %s", m.Version))
	return nil
}

func (i *Installer) assemble(ctx context.Context, m *manifest.Manifest, dir string, sink progress.Sink) error {
	n := float64(len(m.Packages))
	for idx, pkg := range m.Packages {
		lo := float64(idx) / n
		mid := (float64(idx) + 0.7) / n
		hi := float64(idx+1) / n
		sink.Report(Task, lo, fmt.Sprintf("Installing %s (%d/%d)", pkg.Name, idx+1, len(m.Packages)))

		cached, err := i.fetch(ctx, m, pkg, progress.Scale(sink, Task, lo, mid))
		if err != nil {
			return err
		}

		dest := filepath.Join(dir, filepath.FromSlash(Destination(pkg.Name)))
		if _, err := archive.Extract(cached, dest, Task, progress.Scale(sink, Task, mid, hi)); err != nil {
			return fmt.Errorf("extracting %s: %w", pkg.Name, err)
		}
	}

	if err := relocateQt(dir); err != nil {
		return apperr.Wrap(apperr.KindExtraction, "relocating Qt5 plugins", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "AppSettings.xml"), []byte(appSettings), appdata.FilePermNormal); err != nil {
		return fmt.Errorf("writing AppSettings.xml: %w", err)
	}
	return nil
}

// fetch returns the cache path of pkg, downloading it when absent.
func (i *Installer) fetch(ctx context.Context, m *manifest.Manifest, pkg manifest.Package, rep progress.Reporter) (string, error) {
	cached := filepath.Join(i.layout.Downloads(), pkg.Checksum)
	if appdata.Exists(cached) {
		i.log.Debug("package cached", zap.String("package", pkg.Name), zap.String("checksum", pkg.Checksum))
		rep.Report(Task, 1, "")
		return cached, nil
	}

	if err := i.dl.Download(ctx, m.URL(i.cdn, pkg), cached, Task, rep); err != nil {
		return "", fmt.Errorf("downloading %s: %w", pkg.Name, err)
	}
	if err := verifyChecksum(cached, pkg.Checksum); err != nil {
		os.Remove(cached)
		return "", apperr.Wrap(apperr.KindNetwork, "downloading "+pkg.Name, err)
	}
	return cached, nil
}

func verifyChecksum(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening package for checksum: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("computing checksum: %w", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// relocateQt moves the contents of each toolkit plugin directory to root,
// replacing existing entries, and removes the emptied source.
func relocateQt(root string) error {
	for _, rel := range qtDirs {
		src := filepath.Join(root, filepath.FromSlash(rel))
		if !appdata.IsDir(src) {
			continue
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			target := filepath.Join(root, e.Name())
			if err := os.RemoveAll(target); err != nil {
				return err
			}
			if err := os.Rename(filepath.Join(src, e.Name()), target); err != nil {
				return err
			}
		}
		if err := os.Remove(src); err != nil {
			return err
		}
	}
	return nil
}
