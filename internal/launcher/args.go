package launcher

import (
	"io"
	"strings"

	"github.com/rsjfw/rsjfw/internal/config"
	"github.com/rsjfw/rsjfw/internal/supervisor"
)

var protocolSchemes = []string{"roblox-studio:", "roblox-studio-auth:"}

// RewriteArgs prefixes URL-handler arguments with -protocolString and
// reports whether any were present.
func RewriteArgs(args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	protocol := false
	for _, a := range args {
		if isProtocolURL(a) {
			out = append(out, "-protocolString", a)
			protocol = true
			continue
		}
		out = append(out, a)
	}
	return out, protocol
}

func isProtocolURL(arg string) bool {
	for _, scheme := range protocolSchemes {
		if strings.HasPrefix(arg, scheme) {
			return true
		}
	}
	return false
}

func supervisorRequest(p *prepared, exe string, args []string, protocol, dxvk bool, g config.General, out io.Writer) supervisor.Request {
	return supervisor.Request{
		Prefix:      p.prefix,
		Exe:         exe,
		Args:        args,
		Protocol:    protocol,
		DXVK:        dxvk,
		GPU:         g.GPU,
		WebView2Dir: p.webView2Dir,
		Env:         g.CustomEnv,
		Desktop: supervisor.Desktop{
			Enabled:    g.DesktopMode,
			Multiple:   g.MultipleDesktops,
			Resolution: g.DesktopResolution,
		},
		Output: out,
	}
}
