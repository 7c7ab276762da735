package installer

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rsjfw/rsjfw/internal/apperr"
)

// Uninstall removes an installed version. Removing a version that is not
// installed is not an error.
func (i *Installer) Uninstall(versionID string) error {
	if versionID == "" || strings.ContainsAny(versionID, `/\`) || strings.HasPrefix(versionID, ".") {
		return apperr.Newf(apperr.KindConfig, "uninstall", "invalid version %q", versionID)
	}
	if err := os.RemoveAll(i.layout.Version(versionID)); err != nil {
		return fmt.Errorf("removing %s: %w", versionID, err)
	}
	return nil
}

// Installed lists installed version identifiers, newest first.
func (i *Installer) Installed() ([]string, error) {
	entries, err := os.ReadDir(i.layout.Versions())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading versions directory: %w", err)
	}

	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{e.Name(), info.ModTime()})
	}
	sort.Slice(items, func(a, b int) bool { return items[a].mod.After(items[b].mod) })

	ids := make([]string, len(items))
	for n, it := range items {
		ids[n] = it.id
	}
	return ids, nil
}

// LatestInstalled returns the most recently modified installed version.
func (i *Installer) LatestInstalled() (string, error) {
	ids, err := i.Installed()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", apperr.New(apperr.KindNotFound, "latest installed", "no version is installed")
	}
	return ids[0], nil
}
