package provision

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var numericRun = regexp.MustCompile(`\d+(?:[.-]\d+)*`)

// folderVersion extracts a comparable version from a release folder name,
// e.g. "GE-Proton9-20" → 9.20, "wine-9.0-amd64" → 9.0.
func folderVersion(name string) *semver.Version {
	m := numericRun.FindString(name)
	if m == "" {
		return nil
	}
	v, err := semver.NewVersion(strings.ReplaceAll(m, "-", "."))
	if err != nil {
		return nil
	}
	return v
}

// matchesVersion reports whether a folder or root name satisfies the
// requested version. A leading "v" on the tag is optional in folder names.
func matchesVersion(name, version string) bool {
	if version == "" || strings.EqualFold(version, Latest) {
		return true
	}
	return strings.Contains(name, version) || strings.Contains(name, strings.TrimPrefix(version, "v"))
}

// scanStaging returns the best already-extracted root in the staging
// directory whose name carries the repo's folder pattern and satisfies
// version. When several
// qualify, the highest parsed version wins.
func (c Component) scanStaging(repo Repo, version string) (string, bool) {
	entries, err := os.ReadDir(c.Staging)
	if err != nil {
		return "", false
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.Contains(name, repo.FolderPattern) || !matchesVersion(name, version) {
			continue
		}
		if repo.Exclude != "" && strings.Contains(strings.ToLower(name), repo.Exclude) {
			continue
		}
		if c.Valid(filepath.Join(c.Staging, name)) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		vi, vj := folderVersion(candidates[i]), folderVersion(candidates[j])
		switch {
		case vi != nil && vj != nil && !vi.Equal(vj):
			return vi.GreaterThan(vj)
		case vi != nil && vj == nil:
			return true
		case vi == nil && vj != nil:
			return false
		}
		return candidates[i] > candidates[j]
	})
	return filepath.Join(c.Staging, candidates[0]), true
}
