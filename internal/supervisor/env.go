package supervisor

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rsjfw/rsjfw/internal/gpu"
	"github.com/rsjfw/rsjfw/internal/wine"
)

const (
	baseDLLOverrides = "dxdiagn,winemenubuilder.exe,mscoree,mshtml=;msedgewebview2=n,b"
	dxvkDLLOverrides = "dxgi,d3d11=n,b;"
)

const webView2Args = `--no-sandbox --disable-features=WebRtcHideLocalIpsWithMdns --disable-gpu-sandbox ` +
	`--user-agent="Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) ` +
	`Chrome/120.0.0.0 Safari/537.36 Edge/120.0.0.0"`

// perfEnv are the performance and compatibility defaults.
var perfEnv = map[string]string{
	"WINEESYNC":                   "1",
	"WINEFSYNC":                   "1",
	"MESA_GL_VERSION_OVERRIDE":    "4.4",
	"__GL_THREADED_OPTIMIZATIONS": "1",
	"DXVK_LOG_LEVEL":              "warn",
	"WINEDEBUG":                   "fixme-all,err-kerberos,err-ntlm,err-combase",
}

// sessionVars are re-applied from the parent after user variables so a
// custom entry cannot detach the child from the graphical session.
var sessionVars = []string{
	"DISPLAY",
	"WAYLAND_DISPLAY",
	"XDG_RUNTIME_DIR",
	"XAUTHORITY",
	"DBUS_SESSION_BUS_ADDRESS",
}

// DLLOverrides returns the WINEDLLOVERRIDES value.
func DLLOverrides(dxvk bool) string {
	if dxvk {
		return dxvkDLLOverrides + baseDLLOverrides
	}
	return baseDLLOverrides
}

// DesktopArgs returns the explorer wrapper arguments, or nil when the
// application runs without a virtual desktop. Multiple desktops take
// precedence and are named after pid.
func DesktopArgs(d Desktop, pid int) []string {
	var name string
	switch {
	case d.Multiple:
		name = fmt.Sprintf("RSJFW_%d", pid)
	case d.Enabled:
		name = "RSJFW_Desktop"
	default:
		return nil
	}
	return []string{"explorer", fmt.Sprintf("/desktop=%s,%s", name, d.Resolution)}
}

// WebView2Env returns the variables pointing the embedded browser at the
// runtime installed in the prefix. browserDir is empty when none was found.
func WebView2Env(browserDir, user string) map[string]string {
	env := map[string]string{
		"WEBVIEW2_USER_DATA_FOLDER":            `C:\users\` + user + `\AppData\Local\Roblox\WebView2`,
		"WEBVIEW2_ADDITIONAL_BROWSER_ARGUMENTS": webView2Args,
	}
	if browserDir != "" {
		env["WEBVIEW2_BROWSER_EXECUTABLE_FOLDER"] = browserDir
	}
	return env
}

// BuildEnv assembles the child environment. Layers, lowest first: parent
// environment, performance flags, DLL overrides, GPU selection, WebView2,
// custom variables, display-session variables, WINEPREFIX.
func (s *Supervisor) BuildEnv(req Request) []string {
	parent := toMap(s.environ())
	env := make(map[string]string, len(parent)+16)
	merge(env, parent)
	merge(env, perfEnv)
	env["WINEDLLOVERRIDES"] = DLLOverrides(req.DXVK)
	merge(env, gpu.EnvFor(req.GPU))

	user := req.User
	if user == "" {
		user = wine.User()
	}
	merge(env, WebView2Env(req.WebView2Dir, user))
	merge(env, req.Env)

	for _, k := range sessionVars {
		if v, ok := parent[k]; ok {
			env[k] = v
		}
	}
	if req.Prefix != nil {
		env["WINEPREFIX"] = req.Prefix.Dir
	}
	return toList(env)
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func toMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func toList(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func defaultEnviron() []string { return os.Environ() }
