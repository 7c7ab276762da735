package appdata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rsjfw/rsjfw/internal/branding"
)

// Directory and file name constants for the application-data root.
const (
	VersionsDir     = "versions"
	DownloadsDir    = "downloads"
	WineDir         = "wine"
	DxvkDir         = "dxvk"
	PrefixDir       = "prefix"
	LogsDir         = "logs"
	ReleaseCacheDir = "release-cache"
	ConfigFile      = "config.yaml"
	LogFile         = "rsjfw.log"
	FFlagsFile      = "fflags.yaml"
)

// Permission constants.
const (
	DirPermNormal  os.FileMode = 0755
	FilePermNormal os.FileMode = 0644
)

// Layout resolves paths below one application-data root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// Resolve returns the layout for the current user.
// It checks the RSJFW_ROOT environment variable first,
// then falls back to ~/.rsjfw.
func Resolve() (Layout, error) {
	if v := os.Getenv(branding.EnvVar("ROOT")); v != "" {
		return New(v), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("resolving home directory: %w", err)
	}
	return New(filepath.Join(home, branding.HomeDir())), nil
}

// Versions returns the directory holding installed application trees.
func (l Layout) Versions() string { return filepath.Join(l.Root, VersionsDir) }

// Version returns the install directory for a version identifier.
func (l Layout) Version(versionID string) string {
	return filepath.Join(l.Root, VersionsDir, versionID)
}

// Downloads returns the content-addressed package cache directory.
func (l Layout) Downloads() string { return filepath.Join(l.Root, DownloadsDir) }

// Wine returns the staging directory for provisioned Wine releases.
func (l Layout) Wine() string { return filepath.Join(l.Root, WineDir) }

// Dxvk returns the staging directory for provisioned DXVK releases.
func (l Layout) Dxvk() string { return filepath.Join(l.Root, DxvkDir) }

// Prefix returns the Wine prefix directory.
func (l Layout) Prefix() string { return filepath.Join(l.Root, PrefixDir) }

// Logs returns the per-launch log directory.
func (l Layout) Logs() string { return filepath.Join(l.Root, LogsDir) }

// ReleaseCache returns the directory holding cached release lists.
func (l Layout) ReleaseCache() string { return filepath.Join(l.Root, ReleaseCacheDir) }

// ConfigPath returns the path of the settings file.
func (l Layout) ConfigPath() string { return filepath.Join(l.Root, ConfigFile) }

// FFlagsPath returns the path of the persisted fast-flag set.
func (l Layout) FFlagsPath() string { return filepath.Join(l.Root, FFlagsFile) }

// LogPath returns the path of the shared application log.
func (l Layout) LogPath() string { return filepath.Join(l.Root, LogFile) }

// Ensure creates the root and every fixed subdirectory if missing.
func (l Layout) Ensure() error {
	for _, dir := range []string{
		l.Root, l.Versions(), l.Downloads(), l.Wine(), l.Dxvk(), l.Prefix(), l.Logs(),
	} {
		if err := os.MkdirAll(dir, DirPermNormal); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
