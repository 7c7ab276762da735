package launcher

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/config"
	"github.com/rsjfw/rsjfw/internal/fflag"
	"github.com/rsjfw/rsjfw/internal/httpclient"
	"github.com/rsjfw/rsjfw/internal/prefix"
	"github.com/rsjfw/rsjfw/internal/progress"
)

const testVersion = "version-abc123"

type memStore map[string]string

func (m memStore) RecordRoot(component, root string) error {
	m[component] = root
	return nil
}

func studioZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(ExeName)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("MZ"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newServer serves the version service and the CDN. versionStatus lets a
// test make the version service fail.
func newServer(t *testing.T, versionStatus int) *httptest.Server {
	t.Helper()
	pkg := studioZip(t)
	sum := md5.Sum(pkg)
	manifest := fmt.Sprintf("v0\nRobloxStudio.zip\n%s\n%d\n%d\n", hex.EncodeToString(sum[:]), len(pkg), len(pkg))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/client-version/WindowsStudio64/channel/production":
			if versionStatus != http.StatusOK {
				w.WriteHeader(versionStatus)
				return
			}
			fmt.Fprintf(w, `{"version":"0.600.0","clientVersionUpload":%q}`, testVersion)
		case "/" + testVersion + "-rbxPkgManifest.txt":
			w.Write([]byte(manifest))
		case "/" + testVersion + "-RobloxStudio.zip":
			w.Write(pkg)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeSystemWine puts wine and wineserver scripts first on PATH. Both
// append their arguments to the returned log.
func fakeSystemWine(t *testing.T) string {
	t.Helper()
	bin := t.TempDir()
	calls := filepath.Join(bin, "calls.log")
	wineScript := `#!/bin/sh
echo "wine $*" >> "` + calls + `"
if [ "$1" = reg ]; then
  if [ "$2" = query ]; then exit 1; fi
  exit 0
fi
echo "studio running $*"
case "$*" in *-slow*) sleep 1 ;; esac
echo "studio exited $*" >> "` + calls + `"
`
	server := "#!/bin/sh\necho \"wineserver $*\" >> \"" + calls + "\"\n"
	os.WriteFile(filepath.Join(bin, "wine"), []byte(wineScript), 0755)
	os.WriteFile(filepath.Join(bin, "wineserver"), []byte(server), 0755)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("USER", "tester")
	return calls
}

func stageDXVK(t *testing.T, layout appdata.Layout) {
	t.Helper()
	x64 := filepath.Join(layout.Dxvk(), "dxvk-2.3", "x64")
	os.MkdirAll(x64, 0755)
	os.MkdirAll(filepath.Join(layout.Dxvk(), "dxvk-2.3", "x32"), 0755)
	for _, dll := range dxvkDLLs {
		os.WriteFile(filepath.Join(x64, dll), []byte("dxvk "+dll), 0644)
	}
}

func testSettings(srv *httptest.Server) config.Settings {
	return config.Settings{
		General: config.General{
			Channel:           "production",
			Renderer:          "Vulkan",
			GPU:               -1,
			DesktopResolution: "1920x1080",
			CustomEnv:         map[string]string{"STUDIO_TEST": "1"},
		},
		Wine:        config.Runtime{Source: "System", Version: "Latest"},
		Dxvk:        config.Runtime{Source: "Official", Version: "Latest"},
		DxvkEnabled: true,
		Endpoints: config.Endpoints{
			ClientSettings: srv.URL,
			CDN:            srv.URL,
			GitHubAPI:      srv.URL,
		},
	}
}

func TestRun_FullPipeline(t *testing.T) {
	calls := fakeSystemWine(t)
	srv := newServer(t, http.StatusOK)
	layout := appdata.New(t.TempDir())
	stageDXVK(t, layout)

	store := memStore{}
	tracker := progress.NewTracker()
	var out bytes.Buffer
	l := New(layout, testSettings(srv), store, fflag.Set{"DFIntTaskSchedulerTargetFps": fflag.Int(144)},
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), tracker, WithOutput(&out))

	res := l.Run(context.Background(), Request{Args: []string{"roblox-studio:1+launchmode:edit"}})
	if !res.OK {
		t.Fatalf("Run() = %+v", res)
	}

	versionDir := layout.Version(testVersion)
	for _, dll := range dxvkDLLs {
		data, err := os.ReadFile(filepath.Join(versionDir, dll))
		if err != nil || string(data) != "dxvk "+dll {
			t.Errorf("%s not copied: %v", dll, err)
		}
	}
	if store["dxvk"] != filepath.Join(layout.Dxvk(), "dxvk-2.3") {
		t.Errorf("dxvk root = %q", store["dxvk"])
	}

	settings, err := os.ReadFile(filepath.Join(versionDir, "ClientSettings", "ClientAppSettings.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"FFlagDebugGraphicsPreferVulkan": true`, `"FFlagDebugGraphicsDisableD3D11": true`, `"DFIntTaskSchedulerTargetFps": 144`} {
		if !strings.Contains(string(settings), want) {
			t.Errorf("ClientAppSettings.json missing %s", want)
		}
	}

	wp := layout.Prefix()
	if !prefix.IsConfigured(wp) {
		t.Error("prefix not configured")
	}
	localAppData := filepath.Join(wp, "drive_c", "users", "tester", "Local Settings", "Application Data")
	if !appdata.Exists(filepath.Join(localAppData, "Roblox", "ClientSettings", "StudioAppSettings.json")) {
		t.Error("prefix flag cache not written")
	}
	target, err := os.Readlink(filepath.Join(localAppData, "Roblox", "Versions", testVersion))
	if err != nil || target != versionDir {
		t.Errorf("version link = %q, %v", target, err)
	}

	log, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), `wine reg add HKCU\Software\Wine\WineDbg`) {
		t.Errorf("registry not written:\n%s", log)
	}
	if strings.Contains(string(log), "wineserver -k") {
		t.Errorf("protocol launch killed the prefix:\n%s", log)
	}
	wantLaunch := "wine " + filepath.Join(versionDir, ExeName) + " -protocolString roblox-studio:1+launchmode:edit"
	if !strings.Contains(string(log), wantLaunch) {
		t.Errorf("launch line missing %q:\n%s", wantLaunch, log)
	}
	if !strings.Contains(out.String(), "studio running") {
		t.Errorf("output = %q", out.String())
	}

	logs, _ := filepath.Glob(filepath.Join(layout.Logs(), "studio_*.log"))
	if len(logs) != 1 {
		t.Errorf("launch logs = %v", logs)
	}
	if s := tracker.Snapshot(); s.Failed || len(s.Tasks) != 0 {
		t.Errorf("tracker = %+v", s)
	}
}

func TestRun_VersionServiceDown(t *testing.T) {
	fakeSystemWine(t)
	srv := newServer(t, http.StatusServiceUnavailable)
	layout := appdata.New(t.TempDir())
	tracker := progress.NewTracker()
	l := New(layout, testSettings(srv), memStore{}, nil,
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), tracker)

	res := l.Run(context.Background(), Request{})
	if res.OK {
		t.Fatal("expected failure")
	}
	if !apperr.Is(res.Err, apperr.KindNetwork) {
		t.Errorf("error kind = %q, want NETWORK", apperr.KindOf(res.Err))
	}
	s := tracker.Snapshot()
	if !s.Failed || s.Status != res.Status {
		t.Errorf("tracker = %+v, status %q", s, res.Status)
	}
}

func TestRun_OfflineUsesInstalledVersion(t *testing.T) {
	calls := fakeSystemWine(t)
	srv := newServer(t, http.StatusServiceUnavailable)
	layout := appdata.New(t.TempDir())
	installed := layout.Version("version-0ff1e")
	os.MkdirAll(installed, 0755)
	os.WriteFile(filepath.Join(installed, ExeName), []byte("MZ"), 0644)
	os.WriteFile(filepath.Join(installed, "dxgi.dll"), []byte("stale"), 0644)

	settings := testSettings(srv)
	settings.DxvkEnabled = false
	l := New(layout, settings, memStore{}, nil,
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), progress.NewTracker())

	res := l.Run(context.Background(), Request{Offline: true})
	if !res.OK {
		t.Fatalf("Run() = %+v", res)
	}
	if appdata.Exists(filepath.Join(installed, "dxgi.dll")) {
		t.Error("DXVK DLL left behind with DXVK disabled")
	}
	log, _ := os.ReadFile(calls)
	if !strings.Contains(string(log), "wineserver -k") {
		t.Errorf("non-protocol launch did not reset the prefix:\n%s", log)
	}
}

func TestInstallAndReinstall(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	layout := appdata.New(t.TempDir())
	l := New(layout, testSettings(srv), memStore{}, nil,
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), progress.NewTracker())

	id, err := l.Install(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if id != testVersion || !l.Installer().IsInstalled(id) {
		t.Fatalf("Install() = %q", id)
	}

	os.MkdirAll(layout.Prefix(), 0755)
	os.WriteFile(filepath.Join(layout.Prefix(), prefix.MarkerFile), nil, 0644)
	marker := filepath.Join(layout.Version(id), "marker")
	os.WriteFile(marker, nil, 0644)

	if _, err := l.Reinstall(context.Background(), Request{}); err != nil {
		t.Fatal(err)
	}
	if appdata.Exists(marker) {
		t.Error("reinstall kept the old tree")
	}
	if prefix.IsConfigured(layout.Prefix()) {
		t.Error("reinstall kept the prefix marker")
	}
}

func TestRewriteArgs(t *testing.T) {
	args, protocol := RewriteArgs([]string{"-ide", "roblox-studio-auth:token", "file.rbxl"})
	want := []string{"-ide", "-protocolString", "roblox-studio-auth:token", "file.rbxl"}
	if !protocol || strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("RewriteArgs() = %v, %v", args, protocol)
	}
	args, protocol = RewriteArgs(nil)
	if protocol || len(args) != 0 {
		t.Errorf("RewriteArgs(nil) = %v, %v", args, protocol)
	}
}

func TestFindWebView2(t *testing.T) {
	dir := t.TempDir()
	if got := findWebView2(dir); got != "" {
		t.Errorf("findWebView2(empty) = %q", got)
	}
	app := filepath.Join(dir, edgeWebViewDir, "120.0.2210.91")
	os.MkdirAll(app, 0755)
	os.WriteFile(filepath.Join(app, "msedgewebview2.exe"), []byte("MZ"), 0644)
	if got := findWebView2(dir); got != app {
		t.Errorf("findWebView2() = %q, want %q", got, app)
	}
}

func TestHandoff_OutlivesPrimaryRun(t *testing.T) {
	calls := fakeSystemWine(t)
	srv := newServer(t, http.StatusOK)
	layout := appdata.New(t.TempDir())
	stageDXVK(t, layout)

	l := New(layout, testSettings(srv), memStore{}, fflag.Set{},
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), progress.NewTracker())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if res := l.Run(ctx, Request{}); !res.OK {
		t.Fatalf("Run() = %+v", res)
	}

	// The prepared state is reused, so the services are no longer needed.
	srv.Close()
	if !l.Handoff(ctx, []string{"-slow"}) {
		t.Fatal("Handoff refused on an open launcher")
	}
	l.Wait()

	log, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	want := "studio exited " + filepath.Join(layout.Version(testVersion), ExeName) + " -slow"
	if !strings.Contains(string(log), want) {
		t.Errorf("handed-off session did not run to completion:\n%s", log)
	}
	if n := strings.Count(string(log), "wineserver -k"); n != 1 {
		t.Errorf("wineserver -k ran %d times, want once for the primary run", n)
	}
}

func TestHandoff_CloseWaitsAndRefuses(t *testing.T) {
	calls := fakeSystemWine(t)
	srv := newServer(t, http.StatusOK)
	layout := appdata.New(t.TempDir())
	stageDXVK(t, layout)

	l := New(layout, testSettings(srv), memStore{}, fflag.Set{},
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), progress.NewTracker())

	// Without a previous run the handoff prepares everything itself.
	if !l.Handoff(context.Background(), []string{"-slow"}) {
		t.Fatal("Handoff refused on an open launcher")
	}
	l.Close()

	log, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "studio exited") {
		t.Errorf("Close returned before the session exited:\n%s", log)
	}
	if l.Handoff(context.Background(), []string{"roblox-studio:1"}) {
		t.Error("Handoff accepted after Close")
	}
}

func TestHandoff_CancelStopsSession(t *testing.T) {
	calls := fakeSystemWine(t)
	srv := newServer(t, http.StatusOK)
	layout := appdata.New(t.TempDir())
	stageDXVK(t, layout)

	tracker := progress.NewTracker()
	l := New(layout, testSettings(srv), memStore{}, fflag.Set{},
		httpclient.New(httpclient.WithHTTPClient(srv.Client())), tracker)
	if res := l.Run(context.Background(), Request{}); !res.OK {
		t.Fatalf("Run() = %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.Handoff(ctx, []string{"-slow"})
	cancel()
	l.Wait()

	log, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(log), "studio exited "+filepath.Join(layout.Version(testVersion), ExeName)+" -slow") {
		t.Errorf("cancelled session ran to completion:\n%s", log)
	}
}
