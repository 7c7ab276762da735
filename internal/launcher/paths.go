package launcher

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/platform"
	"github.com/rsjfw/rsjfw/internal/wine"
)

var edgeWebViewDir = filepath.Join("drive_c", "Program Files (x86)", "Microsoft", "EdgeWebView", "Application")

// findWebView2 returns the directory of the first msedgewebview2.exe below
// the prefix's EdgeWebView application folder, or "".
func findWebView2(prefixDir string) string {
	base := filepath.Join(prefixDir, edgeWebViewDir)
	if !appdata.IsDir(base) {
		return ""
	}
	matches, err := doublestar.Glob(os.DirFS(base), "**/msedgewebview2.exe", doublestar.WithFilesOnly())
	if err != nil || len(matches) == 0 {
		return ""
	}
	return filepath.Join(base, filepath.FromSlash(path.Dir(matches[0])))
}

// linkVersion exposes versionDir at the path the application expects
// inside the prefix profile.
func linkVersion(wp *wine.Prefix, id, versionDir string) error {
	link := filepath.Join(wp.LocalAppData(), "Roblox", "Versions", id)
	if err := os.MkdirAll(filepath.Dir(link), appdata.DirPermNormal); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(link), err)
	}
	return platform.ReplaceSymlink(versionDir, link)
}
