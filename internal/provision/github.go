package provision

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Release represents a GitHub release.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

func (p *Provisioner) releaseURL(repo, version string) string {
	if version == "" || strings.EqualFold(version, Latest) {
		return fmt.Sprintf("%s/repos/%s/releases/latest", p.apiBase, repo)
	}
	return fmt.Sprintf("%s/repos/%s/releases/tags/%s", p.apiBase, repo, url.PathEscape(version))
}

func (p *Provisioner) fetchRelease(ctx context.Context, repo, version string) (*Release, error) {
	var release Release
	if err := p.client.GetJSON(ctx, p.releaseURL(repo, version), &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (p *Provisioner) fetchReleases(ctx context.Context, repo string) ([]Release, error) {
	var releases []Release
	u := fmt.Sprintf("%s/repos/%s/releases", p.apiBase, repo)
	if err := p.client.GetJSON(ctx, u, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// selectAsset returns the first asset whose name contains filter.
func selectAsset(assets []Asset, filter string) (Asset, bool) {
	for _, a := range assets {
		if strings.Contains(a.Name, filter) {
			return a, true
		}
	}
	return Asset{}, false
}
