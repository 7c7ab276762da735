package provision

import (
	"context"
	"time"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"go.uber.org/zap"
)

// ListAvailable returns the tags of one page of releases for source.
// System and Custom have nothing to list. With a release cache configured,
// lists younger than DefaultCacheMaxAge are served from disk.
func (p *Provisioner) ListAvailable(ctx context.Context, source Source) ([]string, error) {
	repo, ok := p.comp.Repo(source)
	if !ok {
		if source == SourceSystem || source == SourceCustom {
			return nil, nil
		}
		return nil, apperr.Newf(apperr.KindConfig, "listing "+p.comp.Name, "unknown source %q", source)
	}

	if p.cacheDir != "" {
		cache, err := LoadCache(p.cacheDir, repo.Repository)
		if err != nil {
			p.log.Warn("ignoring release cache", zap.Error(err))
		} else if !IsCacheStale(cache, DefaultCacheMaxAge) {
			return cache.Tags, nil
		}
	}

	releases, err := p.fetchReleases(ctx, repo.Repository)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(releases))
	for _, r := range releases {
		if r.TagName != "" {
			tags = append(tags, r.TagName)
		}
	}

	if p.cacheDir != "" {
		cache := &ReleaseCache{Repository: repo.Repository, Tags: tags, CheckedAt: time.Now()}
		if err := SaveCache(p.cacheDir, cache); err != nil {
			p.log.Warn("saving release cache", zap.Error(err))
		}
	}
	return tags, nil
}

// Refresh drops the cached release list for source.
func (p *Provisioner) Refresh(source Source) error {
	repo, ok := p.comp.Repo(source)
	if !ok || p.cacheDir == "" {
		return nil
	}
	return InvalidateCache(p.cacheDir, repo.Repository)
}
