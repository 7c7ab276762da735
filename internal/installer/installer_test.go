package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/httpclient"
	"github.com/rsjfw/rsjfw/internal/manifest"
	"github.com/rsjfw/rsjfw/internal/progress"
)

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sum(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}

// cdn serves package archives and counts requests per path.
type cdn struct {
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
	srv   *httptest.Server
}

func newCDN(t *testing.T) *cdn {
	c := &cdn{files: map[string][]byte{}, hits: map[string]int{}}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.hits[r.URL.Path]++
		data, ok := c.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *cdn) add(version, name string, data []byte) manifest.Package {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files["/"+version+"-"+name] = data
	return manifest.Package{Name: name, Checksum: sum(data), Size: int64(len(data)), PackedSize: int64(len(data))}
}

func (c *cdn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.hits {
		n += v
	}
	return n
}

func newInstaller(t *testing.T, c *cdn) (*Installer, appdata.Layout) {
	t.Helper()
	layout := appdata.New(t.TempDir())
	client := httpclient.New(httpclient.WithHTTPClient(c.srv.Client()))
	return New(layout, client, c.srv.URL), layout
}

func studioManifest(t *testing.T, c *cdn, version string) *manifest.Manifest {
	return &manifest.Manifest{
		Version: version,
		Packages: []manifest.Package{
			c.add(version, "RobloxStudio.zip", makeZip(t, map[string]string{
				"RobloxStudioBeta.exe": "MZ",
				"platforms/old.dll":    "stale",
			})),
			c.add(version, "content-fonts.zip", makeZip(t, map[string]string{
				`families\SourceSans.json`: "{}",
			})),
			c.add(version, "Plugins.zip", makeZip(t, map[string]string{
				"Qt5/platforms/qwindows.dll": "qt",
			})),
			c.add(version, "mystery.zip", makeZip(t, map[string]string{
				"mystery.txt": "?",
			})),
		},
	}
}

func TestInstall(t *testing.T) {
	c := newCDN(t)
	inst, layout := newInstaller(t, c)
	m := studioManifest(t, c, "version-aaa")
	tr := progress.NewTracker()

	if err := inst.Install(context.Background(), m, tr); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	root := layout.Version("version-aaa")
	checks := []string{
		"RobloxStudioBeta.exe",
		"content/fonts/families/SourceSans.json",
		"platforms/qwindows.dll",
		"mystery.txt",
		"AppSettings.xml",
	}
	for _, rel := range checks {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("%s missing: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "platforms", "old.dll")); !os.IsNotExist(err) {
		t.Error("relocation should replace the existing platforms directory")
	}
	if _, err := os.Stat(filepath.Join(root, "Plugins", "Qt5")); !os.IsNotExist(err) {
		t.Error("emptied Qt5 source should be removed")
	}

	settings, err := os.ReadFile(filepath.Join(root, "AppSettings.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(settings), "<ContentFolder>content</ContentFolder>\r\n") {
		t.Errorf("AppSettings.xml = %q", settings)
	}

	s := tr.Snapshot()
	if len(s.Tasks) != 0 {
		t.Errorf("install task should be finished, active = %+v", s.Tasks)
	}
	if _, err := os.Stat(filepath.Join(layout.Versions(), ".version-aaa.partial")); !os.IsNotExist(err) {
		t.Error("partial directory left behind")
	}
}

func TestInstall_IdempotentWithoutNetwork(t *testing.T) {
	c := newCDN(t)
	inst, _ := newInstaller(t, c)
	m := studioManifest(t, c, "version-aaa")

	if err := inst.Install(context.Background(), m, progress.NewTracker()); err != nil {
		t.Fatal(err)
	}
	before := c.total()

	tr := progress.NewTracker()
	if err := inst.Install(context.Background(), m, tr); err != nil {
		t.Fatal(err)
	}
	if c.total() != before {
		t.Errorf("second install made %d requests", c.total()-before)
	}
	if tr.Snapshot().Status != "Already installed" {
		t.Errorf("status = %q", tr.Snapshot().Status)
	}
}

func TestInstall_SharedPackagesDownloadOnce(t *testing.T) {
	c := newCDN(t)
	inst, _ := newInstaller(t, c)
	shared := makeZip(t, map[string]string{"ssl/cacert.pem": "pem"})

	m1 := &manifest.Manifest{Version: "version-aaa", Packages: []manifest.Package{c.add("version-aaa", "ssl.zip", shared)}}
	m2 := &manifest.Manifest{Version: "version-bbb", Packages: []manifest.Package{c.add("version-bbb", "ssl.zip", shared)}}

	if err := inst.Install(context.Background(), m1, progress.NewTracker()); err != nil {
		t.Fatal(err)
	}
	if err := inst.Install(context.Background(), m2, progress.NewTracker()); err != nil {
		t.Fatal(err)
	}
	if c.hits["/version-bbb-ssl.zip"] != 0 {
		t.Error("package with a cached checksum was downloaded again")
	}
}

func TestInstall_FailureLeavesNoVersion(t *testing.T) {
	c := newCDN(t)
	inst, layout := newInstaller(t, c)
	m := studioManifest(t, c, "version-aaa")
	m.Packages = append(m.Packages, manifest.Package{Name: "missing.zip", Checksum: strings.Repeat("0", 32)})

	err := inst.Install(context.Background(), m, progress.NewTracker())
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Fatalf("error = %v, want network error", err)
	}
	if inst.IsInstalled("version-aaa") {
		t.Error("failed install must not look complete")
	}
	if _, err := os.Stat(filepath.Join(layout.Versions(), ".version-aaa.partial")); !os.IsNotExist(err) {
		t.Error("partial directory left behind")
	}
}

func TestInstall_ChecksumMismatch(t *testing.T) {
	c := newCDN(t)
	inst, layout := newInstaller(t, c)
	pkg := c.add("version-aaa", "ssl.zip", makeZip(t, map[string]string{"a": "b"}))
	pkg.Checksum = strings.Repeat("f", 32)

	err := inst.Install(context.Background(), &manifest.Manifest{Version: "version-aaa", Packages: []manifest.Package{pkg}}, progress.NewTracker())
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("error = %v, want checksum mismatch", err)
	}
	if appdata.Exists(filepath.Join(layout.Downloads(), pkg.Checksum)) {
		t.Error("corrupt download should not stay in the cache")
	}
}

func TestUninstallAndLatestInstalled(t *testing.T) {
	layout := appdata.New(t.TempDir())
	inst := New(layout, nil, "")

	if _, err := inst.LatestInstalled(); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("empty root error = %v, want not found", err)
	}

	old := time.Now().Add(-time.Hour)
	for _, id := range []string{"version-old", "version-new", ".version-x.partial"} {
		if err := os.MkdirAll(layout.Version(id), 0755); err != nil {
			t.Fatal(err)
		}
	}
	os.Chtimes(layout.Version("version-old"), old, old)

	latest, err := inst.LatestInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if latest != "version-new" {
		t.Errorf("LatestInstalled = %q, want version-new", latest)
	}

	if err := inst.Uninstall("version-new"); err != nil {
		t.Fatal(err)
	}
	if inst.IsInstalled("version-new") {
		t.Error("version still installed")
	}
	if err := inst.Uninstall("../etc"); !apperr.Is(err, apperr.KindConfig) {
		t.Errorf("Uninstall traversal error = %v", err)
	}
}

func TestDestination(t *testing.T) {
	tests := map[string]string{
		"content-textures3.zip":    "PlatformContent/pc/textures",
		"extracontent-scripts.zip": "ExtraContent/scripts",
		"RobloxStudio.zip":         "",
		"unknown.zip":              "",
	}
	for name, want := range tests {
		if got := Destination(name); got != want {
			t.Errorf("Destination(%q) = %q, want %q", name, got, want)
		}
	}
}

// recordingSink keeps the raw fractions reported for the install task.
type recordingSink struct {
	mu        sync.Mutex
	fractions []float64
	finished  bool
}

func (r *recordingSink) Report(task string, fraction float64, status string) {
	if task != Task {
		return
	}
	r.mu.Lock()
	r.fractions = append(r.fractions, fraction)
	r.mu.Unlock()
}

func (r *recordingSink) Begin(task, status string) {}

func (r *recordingSink) Finish(task, status string) {
	r.mu.Lock()
	r.finished = r.finished || task == Task
	r.mu.Unlock()
}

func TestInstall_ProgressIsMonotonicAndEndsAtOne(t *testing.T) {
	c := newCDN(t)
	inst, _ := newInstaller(t, c)
	m := studioManifest(t, c, "version-ddd")
	rec := &recordingSink{}

	if err := inst.Install(context.Background(), m, rec); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	if len(rec.fractions) == 0 {
		t.Fatal("no progress reported")
	}
	for i, f := range rec.fractions {
		if f < 0 || f > 1 {
			t.Errorf("fraction %d = %v out of range", i, f)
		}
		if i > 0 && f < rec.fractions[i-1] {
			t.Errorf("fraction %d went backwards: %v -> %v", i, rec.fractions[i-1], f)
		}
	}
	if last := rec.fractions[len(rec.fractions)-1]; last != 1 {
		t.Errorf("last fraction = %v, want exactly 1", last)
	}
	if !rec.finished {
		t.Error("install task not finished")
	}
}
