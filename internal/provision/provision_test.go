package provision

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/httpclient"
	"github.com/rsjfw/rsjfw/internal/progress"
)

type memStore map[string]string

func (m memStore) RecordRoot(component, root string) error {
	m[component] = root
	return nil
}

// createTestTarGz creates a tar.gz archive with the given files under top.
func createTestTarGz(t *testing.T, top string, files []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0755})
	for _, f := range files {
		body := []byte("bin")
		hdr := &tar.Header{Name: top + "/" + f, Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		tw.Write(body)
	}
	tw.Close()
	gw.Close()
	return buf.Bytes()
}

type fakeGitHub struct {
	mu       sync.Mutex
	srv      *httptest.Server
	requests int32
	releases map[string]Release // keyed by request path
	assets   map[string][]byte
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	g := &fakeGitHub{releases: map[string]Release{}, assets: map[string][]byte{}}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.requests, 1)
		g.mu.Lock()
		defer g.mu.Unlock()
		if data, ok := g.assets[r.URL.Path]; ok {
			w.Write(data)
			return
		}
		if rel, ok := g.releases[r.URL.Path]; ok {
			json.NewEncoder(w).Encode(rel)
			return
		}
		if r.URL.Path == "/repos/doitsujin/dxvk/releases" {
			json.NewEncoder(w).Encode([]Release{{TagName: "v2.5"}, {TagName: "v2.4"}})
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGitHub) setAsset(path string, data []byte) {
	g.mu.Lock()
	g.assets[path] = data
	g.mu.Unlock()
}

func (g *fakeGitHub) hits() int { return int(atomic.LoadInt32(&g.requests)) }

func setup(t *testing.T, g *fakeGitHub, comp func(appdata.Layout) Component) (*Provisioner, memStore, appdata.Layout) {
	t.Helper()
	layout := appdata.New(t.TempDir())
	store := memStore{}
	client := httpclient.New(httpclient.WithHTTPClient(g.srv.Client()))
	return New(comp(layout), client, store, g.srv.URL, WithReleaseCache(layout.ReleaseCache())), store, layout
}

func TestEnsure_DownloadsLatest(t *testing.T) {
	g := newFakeGitHub(t)
	g.assets["/dl/dxvk-2.5.tar.gz"] = createTestTarGz(t, "dxvk-2.5", []string{"x64/dxgi.dll", "x64/d3d11.dll"})
	g.releases["/repos/doitsujin/dxvk/releases/latest"] = Release{
		TagName: "v2.5",
		Assets: []Asset{
			{Name: "dxvk-2.5.sig", DownloadURL: g.srv.URL + "/dl/dxvk-2.5.sig"},
			{Name: "dxvk-2.5.tar.gz", DownloadURL: g.srv.URL + "/dl/dxvk-2.5.tar.gz"},
		},
	}
	p, store, layout := setup(t, g, DXVK)
	tr := progress.NewTracker()

	root, err := p.Ensure(context.Background(), Descriptor{Source: SourceOfficial, Version: Latest}, tr)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	want := filepath.Join(layout.Dxvk(), "dxvk-2.5")
	if root != want {
		t.Errorf("root = %q, want %q", root, want)
	}
	if store["dxvk"] != want {
		t.Errorf("recorded root = %q", store["dxvk"])
	}
	if appdata.Exists(filepath.Join(layout.Dxvk(), "dxvk-2.5.tar.gz")) {
		t.Error("archive should be deleted after extraction")
	}
	if len(tr.Snapshot().Tasks) != 0 {
		t.Error("dxvk task should be finished")
	}

	// Second call is a cache hit on the recorded root.
	before := g.hits()
	again, err := p.Ensure(context.Background(), Descriptor{Source: SourceOfficial, Version: Latest, Root: root}, tr)
	if err != nil || again != root {
		t.Fatalf("second Ensure = %q, %v", again, err)
	}
	if g.hits() != before {
		t.Error("cache hit should not touch the network")
	}
}

func TestEnsure_TaggedProtonLayout(t *testing.T) {
	g := newFakeGitHub(t)
	g.assets["/dl/GE-Proton9-20.tar.gz"] = createTestTarGz(t, "GE-Proton9-20", []string{"proton", "files/bin/wine"})
	g.releases["/repos/GloriousEggroll/proton-ge-custom/releases/tags/GE-Proton9-20"] = Release{
		TagName: "GE-Proton9-20",
		Assets: []Asset{
			{Name: "GE-Proton9-20.sha512sum", DownloadURL: g.srv.URL + "/dl/sum"},
			{Name: "GE-Proton9-20.tar.gz", DownloadURL: g.srv.URL + "/dl/GE-Proton9-20.tar.gz"},
		},
	}
	p, _, _ := setup(t, g, Wine)

	root, err := p.Ensure(context.Background(), Descriptor{Source: SourceProtonGE, Version: "GE-Proton9-20"}, progress.NewTracker())
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if filepath.Base(root) != "GE-Proton9-20" {
		t.Errorf("root = %q", root)
	}
}

func TestEnsure_StagingScanWithoutNetwork(t *testing.T) {
	g := newFakeGitHub(t)
	p, store, layout := setup(t, g, Wine)
	for _, dir := range []string{"wine-9.0-amd64", "wine-10.2-amd64", "wine-broken"} {
		if err := os.MkdirAll(filepath.Join(layout.Wine(), dir, "bin"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	for _, dir := range []string{"wine-9.0-amd64", "wine-10.2-amd64"} {
		os.WriteFile(filepath.Join(layout.Wine(), dir, "bin", "wine"), []byte("x"), 0755)
	}

	root, err := p.Ensure(context.Background(), Descriptor{Source: SourceVinegar, Version: Latest, Root: "/gone"}, progress.NewTracker())
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if filepath.Base(root) != "wine-10.2-amd64" {
		t.Errorf("root = %q, want the highest staged version", root)
	}
	if store["wine"] != root {
		t.Error("adopted root should be persisted")
	}
	if g.hits() != 0 {
		t.Errorf("staging adoption made %d requests", g.hits())
	}

	root, err = p.Ensure(context.Background(), Descriptor{Source: SourceVinegar, Version: "9.0"}, progress.NewTracker())
	if err != nil || filepath.Base(root) != "wine-9.0-amd64" {
		t.Errorf("versioned scan = %q, %v", root, err)
	}
}

func TestEnsure_CustomNeverDownloads(t *testing.T) {
	g := newFakeGitHub(t)
	p, store, _ := setup(t, g, Wine)

	_, err := p.Ensure(context.Background(), Descriptor{Source: SourceCustom, Root: "/does/not/exist"}, progress.NewTracker())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
	if g.hits() != 0 {
		t.Error("custom source must not download")
	}
	if len(store) != 0 {
		t.Error("custom root must not be replaced")
	}
}

func TestEnsure_SystemFailsWithoutNetwork(t *testing.T) {
	g := newFakeGitHub(t)
	p, _, _ := setup(t, g, Wine)

	_, err := p.Ensure(context.Background(), Descriptor{Source: SourceSystem}, progress.NewTracker())
	if !errors.Is(err, ErrNothingToProvision) {
		t.Errorf("error = %v, want ErrNothingToProvision", err)
	}
	if g.hits() != 0 {
		t.Error("system source must not touch the network")
	}
}

func TestEnsure_NotFound(t *testing.T) {
	g := newFakeGitHub(t)
	g.releases["/repos/doitsujin/dxvk/releases/latest"] = Release{
		TagName: "v2.5",
		Assets:  []Asset{{Name: "dxvk-2.5.zip", DownloadURL: g.srv.URL + "/dl/zip"}},
	}
	p, _, _ := setup(t, g, DXVK)

	tests := []struct {
		name    string
		version string
	}{
		{"no matching asset", Latest},
		{"unknown tag", "v9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Ensure(context.Background(), Descriptor{Source: SourceOfficial, Version: tt.version}, progress.NewTracker())
			if !apperr.Is(err, apperr.KindNotFound) {
				t.Errorf("error = %v, want not found", err)
			}
		})
	}
}

func TestEnsure_MissingBinaryIsExtractionError(t *testing.T) {
	g := newFakeGitHub(t)
	g.assets["/dl/dxvk-2.5.tar.gz"] = createTestTarGz(t, "dxvk-2.5", []string{"README.md"})
	g.releases["/repos/doitsujin/dxvk/releases/latest"] = Release{
		TagName: "v2.5",
		Assets:  []Asset{{Name: "dxvk-2.5.tar.gz", DownloadURL: g.srv.URL + "/dl/dxvk-2.5.tar.gz"}},
	}
	p, store, layout := setup(t, g, DXVK)

	_, err := p.Ensure(context.Background(), Descriptor{Source: SourceOfficial, Version: Latest}, progress.NewTracker())
	if !apperr.Is(err, apperr.KindExtraction) {
		t.Errorf("error = %v, want extraction error", err)
	}
	if _, ok := store["dxvk"]; ok {
		t.Error("invalid root must not be recorded")
	}
	if appdata.Exists(filepath.Join(layout.Dxvk(), "dxvk-2.5.tar.gz")) {
		t.Error("failed archive must not stay in staging")
	}

	// Upstream fixes the asset; the next run downloads it again.
	g.setAsset("/dl/dxvk-2.5.tar.gz", createTestTarGz(t, "dxvk-2.5", []string{"x64/dxgi.dll", "x64/d3d11.dll"}))
	before := g.hits()
	root, err := p.Ensure(context.Background(), Descriptor{Source: SourceOfficial, Version: Latest}, progress.NewTracker())
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if got := g.hits() - before; got != 2 {
		t.Errorf("second Ensure made %d requests, want release + asset", got)
	}
	if store["dxvk"] != root {
		t.Errorf("recorded root = %q, want %q", store["dxvk"], root)
	}
}

func TestEnsure_CorruptArchiveIsRemoved(t *testing.T) {
	g := newFakeGitHub(t)
	g.assets["/dl/dxvk-2.5.tar.gz"] = []byte("\x1f\x8b truncated")
	g.releases["/repos/doitsujin/dxvk/releases/latest"] = Release{
		TagName: "v2.5",
		Assets:  []Asset{{Name: "dxvk-2.5.tar.gz", DownloadURL: g.srv.URL + "/dl/dxvk-2.5.tar.gz"}},
	}
	p, _, layout := setup(t, g, DXVK)

	if _, err := p.Ensure(context.Background(), Descriptor{Source: SourceOfficial, Version: Latest}, progress.NewTracker()); err == nil {
		t.Fatal("expected error for corrupt archive")
	}
	if appdata.Exists(filepath.Join(layout.Dxvk(), "dxvk-2.5.tar.gz")) {
		t.Error("corrupt archive must not stay in staging")
	}
}

func TestListAvailable_UsesCache(t *testing.T) {
	g := newFakeGitHub(t)
	p, _, layout := setup(t, g, DXVK)

	tags, err := p.ListAvailable(context.Background(), SourceOfficial)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(tags) != "[v2.5 v2.4]" {
		t.Errorf("tags = %v", tags)
	}
	before := g.hits()
	if _, err := p.ListAvailable(context.Background(), SourceOfficial); err != nil {
		t.Fatal(err)
	}
	if g.hits() != before {
		t.Error("fresh cache should serve the second list")
	}

	if err := p.Refresh(SourceOfficial); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ListAvailable(context.Background(), SourceOfficial); err != nil {
		t.Fatal(err)
	}
	if g.hits() != before+1 {
		t.Error("refresh should force a network fetch")
	}

	cache, err := LoadCache(layout.ReleaseCache(), "doitsujin/dxvk")
	if err != nil || cache == nil {
		t.Fatalf("LoadCache = %v, %v", cache, err)
	}
}

func TestListAvailable_SystemIsEmpty(t *testing.T) {
	g := newFakeGitHub(t)
	p, _, _ := setup(t, g, Wine)
	tags, err := p.ListAvailable(context.Background(), SourceSystem)
	if err != nil || len(tags) != 0 {
		t.Errorf("tags = %v, err = %v", tags, err)
	}
}

func TestIsCacheStale(t *testing.T) {
	if !IsCacheStale(nil, time.Hour) {
		t.Error("nil cache is stale")
	}
	if IsCacheStale(&ReleaseCache{CheckedAt: time.Now()}, time.Hour) {
		t.Error("fresh cache is not stale")
	}
	if !IsCacheStale(&ReleaseCache{CheckedAt: time.Now().Add(-2 * time.Hour)}, time.Hour) {
		t.Error("old cache is stale")
	}
}

func TestFolderVersion(t *testing.T) {
	tests := map[string]string{
		"GE-Proton9-20":   "9.20.0",
		"wine-10.2-amd64": "10.2.0",
		"dxvk-2.5.3":      "2.5.3",
	}
	for name, want := range tests {
		v := folderVersion(name)
		if v == nil || v.String() != want {
			t.Errorf("folderVersion(%q) = %v, want %s", name, v, want)
		}
	}
	if folderVersion("wine-custom") != nil {
		t.Error("no digits should yield nil")
	}
}

func TestFixPermissions_OnlyBinaries(t *testing.T) {
	layout := appdata.New(t.TempDir())
	root := filepath.Join(layout.Wine(), "wine-9.0")
	bin := filepath.Join(root, "bin", "wine")
	lib := filepath.Join(root, "lib", "wine.so")
	for _, f := range []string{bin, lib} {
		if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, nil, 0644); err != nil {
			t.Fatal(err)
		}
		os.Chmod(f, 0644)
	}

	if err := Wine(layout).fixPermissions(root); err != nil {
		t.Fatalf("fixPermissions: %v", err)
	}
	if info, _ := os.Stat(bin); info.Mode().Perm() != 0755 {
		t.Errorf("bin/wine mode = %o, want 755", info.Mode().Perm())
	}
	if info, _ := os.Stat(lib); info.Mode().Perm() != 0644 {
		t.Errorf("lib mode changed to %o", info.Mode().Perm())
	}
}
