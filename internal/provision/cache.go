package provision

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCacheMaxAge is the default maximum age for cached release lists.
const DefaultCacheMaxAge = 24 * time.Hour

// ReleaseCache holds the tag list of one repository.
type ReleaseCache struct {
	Repository string    `json:"repository"`
	Tags       []string  `json:"tags"`
	CheckedAt  time.Time `json:"checked_at"`
}

func cachePath(dir, repo string) string {
	return filepath.Join(dir, strings.ReplaceAll(repo, "/", "_")+".json")
}

// LoadCache reads the cached release list for repo.
// Returns nil, nil if the cache file does not exist.
func LoadCache(dir, repo string) (*ReleaseCache, error) {
	data, err := os.ReadFile(cachePath(dir, repo))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading release cache: %w", err)
	}

	var cache ReleaseCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing release cache: %w", err)
	}
	return &cache, nil
}

// SaveCache writes the release list cache.
func SaveCache(dir string, cache *ReleaseCache) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating release cache directory: %w", err)
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling release cache: %w", err)
	}
	if err := os.WriteFile(cachePath(dir, cache.Repository), data, 0644); err != nil {
		return fmt.Errorf("writing release cache: %w", err)
	}
	return nil
}

// InvalidateCache removes the cached release list for repo.
func InvalidateCache(dir, repo string) error {
	err := os.Remove(cachePath(dir, repo))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing release cache: %w", err)
	}
	return nil
}

// IsCacheStale returns true if the cache is older than maxAge or nil.
func IsCacheStale(cache *ReleaseCache, maxAge time.Duration) bool {
	if cache == nil {
		return true
	}
	return time.Since(cache.CheckedAt) > maxAge
}
