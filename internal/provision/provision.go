package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/archive"
	"github.com/rsjfw/rsjfw/internal/httpclient"
	"github.com/rsjfw/rsjfw/internal/progress"
	"go.uber.org/zap"
)

// ErrNothingToProvision is returned by Ensure for the System source.
var ErrNothingToProvision = errors.New("system runtime is not provisioned")

// Client is the HTTP surface Ensure needs.
type Client interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
	Download(ctx context.Context, url, dest, task string, rep progress.Reporter) error
}

// RootStore persists the resolved root of a component.
type RootStore interface {
	RecordRoot(component, root string) error
}

// Descriptor is the requested state of a component.
type Descriptor struct {
	Source  Source
	Version string
	// Root is the previously recorded root; empty when none.
	Root string
}

// Provisioner ensures one component is present on disk.
type Provisioner struct {
	comp     Component
	client   Client
	store    RootStore
	apiBase  string
	cacheDir string
	log      *zap.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) {
		p.log = l
	}
}

// WithReleaseCache enables the release-list cache in dir.
func WithReleaseCache(dir string) Option {
	return func(p *Provisioner) {
		p.cacheDir = dir
	}
}

// New creates a Provisioner for comp querying the GitHub API at apiBase.
func New(comp Component, client Client, store RootStore, apiBase string, opts ...Option) *Provisioner {
	p := &Provisioner{
		comp:    comp,
		client:  client,
		store:   store,
		apiBase: strings.TrimRight(apiBase, "/"),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Component returns the component this provisioner manages.
func (p *Provisioner) Component() Component { return p.comp }

// Ensure returns a valid root for d, downloading and extracting a release
// only when neither the recorded root nor the staging directory can serve.
func (p *Provisioner) Ensure(ctx context.Context, d Descriptor, sink progress.Sink) (string, error) {
	task := p.comp.Name
	op := "provisioning " + task

	// Step 1: recorded root. A custom root is used whatever its name.
	if p.comp.Valid(d.Root) && (d.Source == SourceCustom || matchesVersion(filepath.Base(d.Root), d.Version)) {
		sink.Finish(task, fmt.Sprintf("%s already installed", task))
		return d.Root, nil
	}

	switch d.Source {
	case SourceCustom:
		return "", apperr.Newf(apperr.KindNotFound, op, "custom root %q has no %s binary", d.Root, task)
	case SourceSystem:
		return "", apperr.Wrap(apperr.KindNotFound, op, ErrNothingToProvision)
	}
	repo, ok := p.comp.Repo(d.Source)
	if !ok {
		return "", apperr.Newf(apperr.KindConfig, op, "unknown %s source %q", task, d.Source)
	}

	// Step 2: an already-extracted release in the staging directory.
	if root, ok := p.comp.scanStaging(repo, d.Version); ok {
		if err := p.store.RecordRoot(task, root); err != nil {
			return "", err
		}
		p.log.Info("adopted staged release", zap.String("component", task), zap.String("root", root))
		sink.Finish(task, fmt.Sprintf("%s found: %s", task, filepath.Base(root)))
		return root, nil
	}

	// Step 3: resolve the release asset.
	sink.Begin(task, fmt.Sprintf("Fetching %s %s release...", d.Source, versionLabel(d.Version)))
	release, err := p.fetchRelease(ctx, repo.Repository, d.Version)
	if err != nil {
		if httpclient.HasStatus(err, http.StatusNotFound) {
			return "", apperr.Newf(apperr.KindNotFound, op, "no %s release %s", repo.Repository, versionLabel(d.Version)).WithCause(err)
		}
		return "", err
	}
	asset, ok := selectAsset(release.Assets, repo.AssetFilter)
	if !ok {
		return "", apperr.Newf(apperr.KindNotFound, op, "no asset matching %q in %s %s",
			repo.AssetFilter, repo.Repository, release.TagName)
	}

	// Step 4: download, extract, verify, record.
	root, err := p.install(ctx, asset, sink)
	if err != nil {
		return "", err
	}
	if err := p.store.RecordRoot(task, root); err != nil {
		return "", err
	}
	p.log.Info("provisioned release",
		zap.String("component", task), zap.String("tag", release.TagName), zap.String("root", root))
	sink.Finish(task, fmt.Sprintf("%s %s installed", task, release.TagName))
	return root, nil
}

func (p *Provisioner) install(ctx context.Context, asset Asset, sink progress.Sink) (string, error) {
	task := p.comp.Name
	if err := os.MkdirAll(p.comp.Staging, 0755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}

	filename := path.Base(asset.Name)
	archivePath := filepath.Join(p.comp.Staging, filename)
	if _, err := os.Stat(archivePath); err != nil {
		sink.Report(task, 0, fmt.Sprintf("Downloading %s...", filename))
		if err := p.client.Download(ctx, asset.DownloadURL, archivePath, task, progress.Scale(sink, task, 0, 0.6)); err != nil {
			return "", err
		}
	}

	sink.Report(task, 0.6, fmt.Sprintf("Extracting %s...", filename))
	top, err := archive.Extract(archivePath, p.comp.Staging, task, progress.Scale(sink, task, 0.6, 1))
	// The archive goes whatever the outcome, so a broken download is
	// fetched again on the next run.
	if rmErr := os.Remove(archivePath); rmErr != nil {
		p.log.Warn("removing archive", zap.String("path", archivePath), zap.Error(rmErr))
	}
	if err != nil {
		return "", err
	}
	root := filepath.Join(p.comp.Staging, top)
	if top == "" || !p.comp.Valid(root) {
		return "", apperr.Newf(apperr.KindExtraction, "provisioning "+task,
			"%s did not contain any of %s", filename, strings.Join(p.comp.Layouts, ", "))
	}

	if err := p.comp.fixPermissions(root); err != nil {
		return "", apperr.Wrap(apperr.KindExtraction, "provisioning "+task, err)
	}
	return root, nil
}

func versionLabel(v string) string {
	if v == "" {
		return Latest
	}
	return v
}
