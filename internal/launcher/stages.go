package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/branding"
	"github.com/rsjfw/rsjfw/internal/fflag"
	"github.com/rsjfw/rsjfw/internal/installer"
	"github.com/rsjfw/rsjfw/internal/manifest"
	"github.com/rsjfw/rsjfw/internal/prefix"
	"github.com/rsjfw/rsjfw/internal/provision"
	"github.com/rsjfw/rsjfw/internal/wine"
	"go.uber.org/zap"
)

// ExeName is the application executable inside a version directory.
var ExeName = branding.ApplicationExe()

var dxvkDLLs = []string{"dxgi.dll", "d3d11.dll"}

// prepared is everything a launch needs once the pipeline has run.
type prepared struct {
	versionID   string
	versionDir  string
	prefix      *wine.Prefix
	webView2Dir string
}

// ResolveVersion picks the version to run: the request's pin, then the
// configured override, then the channel's current version. Offline
// requests fall back to the newest installed version on network failure.
func (l *Launcher) ResolveVersion(ctx context.Context, req Request) (string, error) {
	override := req.Version
	if override == "" {
		override = l.settings.General.VersionOverride
	}
	l.tracker.Begin("version", "Resolving version...")
	id, err := l.resolver.Resolve(ctx, l.settings.General.Channel, override)
	if err != nil {
		if !req.Offline || !apperr.Is(err, apperr.KindNetwork) {
			return "", err
		}
		l.log.Warn("version service unreachable, using installed version", zap.Error(err))
		id, err = l.inst.LatestInstalled()
		if err != nil {
			return "", fmt.Errorf("offline launch: %w", err)
		}
	}
	l.tracker.Finish("version", "Version "+id)
	return id, nil
}

// Install resolves and installs the requested version, returning its id.
func (l *Launcher) Install(ctx context.Context, req Request) (string, error) {
	id, err := l.ResolveVersion(ctx, req)
	if err != nil {
		return "", err
	}
	if err := l.installVersion(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Reinstall removes the requested version and the prefix setup marker,
// then installs the version again.
func (l *Launcher) Reinstall(ctx context.Context, req Request) (string, error) {
	id, err := l.ResolveVersion(ctx, req)
	if err != nil {
		return "", err
	}
	if err := l.inst.Uninstall(id); err != nil {
		return "", err
	}
	if err := prefix.Reset(l.layout.Prefix()); err != nil {
		return "", err
	}
	if err := l.installVersion(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (l *Launcher) installVersion(ctx context.Context, id string) error {
	if l.inst.IsInstalled(id) {
		l.tracker.Finish(installer.Task, "Already installed")
		return nil
	}
	l.tracker.Begin(installer.Task, "Fetching manifest...")
	m, err := manifest.Fetch(ctx, l.client, l.settings.Endpoints.CDN, id)
	if err != nil {
		return err
	}
	return l.inst.Install(ctx, m, l.tracker)
}

// prepare runs every stage before the launch itself.
func (l *Launcher) prepare(ctx context.Context, req Request) (*prepared, error) {
	if err := l.layout.Ensure(); err != nil {
		return nil, err
	}

	id, err := l.Install(ctx, req)
	if err != nil {
		return nil, err
	}
	versionDir := l.layout.Version(id)

	wineRoot, err := l.ensureWine(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.ensureDXVK(ctx, versionDir); err != nil {
		return nil, err
	}

	wp := wine.New(wineRoot, l.layout.Prefix(), l.log)
	if err := prefix.Setup(ctx, wp, wp.Dir, l.tracker); err != nil {
		return nil, err
	}
	if err := l.writeFFlags(wp, versionDir); err != nil {
		return nil, err
	}
	if err := linkVersion(wp, id, versionDir); err != nil {
		l.log.Warn("linking version into prefix", zap.Error(err))
	}
	webView2Dir := l.ensureWebView2(ctx, wp, versionDir)

	p := &prepared{versionID: id, versionDir: versionDir, prefix: wp, webView2Dir: webView2Dir}
	l.mu.Lock()
	l.prepared = p
	l.mu.Unlock()
	return p, nil
}

// ensureWine returns the Wine root, or "" for the system Wine on PATH.
func (l *Launcher) ensureWine(ctx context.Context) (string, error) {
	w := l.settings.Wine
	if provision.Source(w.Source) == provision.SourceSystem {
		l.tracker.Finish("wine", "Using system Wine")
		return "", nil
	}
	return l.wine.Ensure(ctx, provision.Descriptor{
		Source:  provision.Source(w.Source),
		Version: w.Version,
		Root:    w.Root,
	}, l.tracker)
}

// ensureDXVK provisions DXVK and copies its DLLs next to the executable,
// or removes previously copied DLLs when DXVK is disabled.
func (l *Launcher) ensureDXVK(ctx context.Context, versionDir string) error {
	if !l.settings.DxvkEnabled {
		for _, dll := range dxvkDLLs {
			if err := os.Remove(filepath.Join(versionDir, dll)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", dll, err)
			}
		}
		return nil
	}

	d := l.settings.Dxvk
	root, err := l.dxvk.Ensure(ctx, provision.Descriptor{
		Source:  provision.Source(d.Source),
		Version: d.Version,
		Root:    d.Root,
	}, l.tracker)
	if err != nil {
		return err
	}
	for _, dll := range dxvkDLLs {
		src := filepath.Join(root, "x64", dll)
		if err := copyFile(src, filepath.Join(versionDir, dll)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return apperr.Newf(apperr.KindNotFound, "installing dxvk", "%s has no x64/%s", root, dll)
			}
			return fmt.Errorf("installing dxvk: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeFFlags writes the merged flag set into the version directory and
// into the profile's local settings cache.
func (l *Launcher) writeFFlags(wp *wine.Prefix, versionDir string) error {
	flags := fflag.ApplyRenderer(l.flags, l.settings.General.Renderer)
	if err := fflag.WriteFile(filepath.Join(versionDir, "ClientSettings", "ClientAppSettings.json"), flags); err != nil {
		return apperr.Wrap(apperr.KindConfig, "writing fast flags", err)
	}
	cache := filepath.Join(wp.LocalAppData(), "Roblox", "ClientSettings", "StudioAppSettings.json")
	if err := fflag.WriteFile(cache, flags); err != nil {
		return apperr.Wrap(apperr.KindConfig, "writing fast flags", err)
	}
	return nil
}

// ensureWebView2 returns the directory holding msedgewebview2.exe, running
// the bundled runtime installer first when the prefix has none. An empty
// result means the embedded browser will be unavailable.
func (l *Launcher) ensureWebView2(ctx context.Context, wp *wine.Prefix, versionDir string) string {
	if dir := findWebView2(wp.Dir); dir != "" {
		return dir
	}

	setup := filepath.Join(versionDir, "WebView2RuntimeInstaller", "MicrosoftEdgeWebview2Setup.exe")
	if !appdata.Exists(setup) {
		l.log.Warn("WebView2 installer missing", zap.String("path", setup))
		return ""
	}

	l.tracker.Begin("webview2", "Installing WebView2 runtime...")
	quiet := wine.New(wp.Root, wp.Dir, l.log)
	quiet.Env["WINEDEBUG"] = "-all"
	if err := quiet.Wine(ctx, setup, "/silent", "/install"); err != nil {
		l.log.Warn("WebView2 install failed", zap.Error(err))
		l.tracker.Finish("webview2", "WebView2 install failed")
		return ""
	}
	l.tracker.Finish("webview2", "WebView2 installed")
	return findWebView2(wp.Dir)
}

// launch hands the prepared version to the supervisor.
func (l *Launcher) launch(ctx context.Context, log *zap.Logger, p *prepared, req Request) error {
	exe := filepath.Join(p.versionDir, ExeName)
	if !appdata.Exists(exe) {
		return apperr.Newf(apperr.KindNotFound, "launch", "%s is missing from %s", ExeName, p.versionID)
	}

	args, protocol := RewriteArgs(req.Args)
	g := l.settings.General
	l.tracker.Begin(Task, "Launching Studio "+p.versionID)

	res, err := l.sup.Launch(ctx, supervisorRequest(p, exe, args, protocol || req.Protocol, l.settings.DxvkEnabled, g, l.output))
	if res != nil {
		log.Info("studio exited", zap.Int("pid", res.Pid), zap.Stringer("status", res.Status),
			zap.Bool("fatal", res.Fatal), zap.String("log", res.LogPath))
	}
	return err
}

// Kill stops every process running in the prefix.
func (l *Launcher) Kill(ctx context.Context) error {
	root := ""
	if provision.Source(l.settings.Wine.Source) != provision.SourceSystem {
		root = l.settings.Wine.Root
	}
	return l.sup.Kill(ctx, wine.New(root, l.layout.Prefix(), l.log))
}
