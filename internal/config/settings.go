package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
)

// General holds application-level launch preferences.
type General struct {
	Channel           string
	VersionOverride   string
	Renderer          string
	GPU               int
	DesktopMode       bool
	MultipleDesktops  bool
	DesktopResolution string
	CustomEnv         map[string]string
}

// Runtime records where a provisioned component comes from and lives.
type Runtime struct {
	Source  string
	Version string
	Root    string
}

// Endpoints lists the remote base URLs.
type Endpoints struct {
	ClientSettings string
	CDN            string
	GitHubAPI      string
}

// Settings is the typed snapshot of the settings file.
type Settings struct {
	General     General
	Wine        Runtime
	Dxvk        Runtime
	DxvkEnabled bool
	Endpoints   Endpoints
}

// Settings builds a typed snapshot of the current values.
func (s *Store) Settings() Settings {
	env := make(map[string]string)
	for k, v := range s.v.GetStringMapString(KeyCustomEnv) {
		// viper lowercases map keys; environment names are conventionally upper case.
		env[strings.ToUpper(k)] = v
	}

	return Settings{
		General: General{
			Channel:           s.v.GetString(KeyChannel),
			VersionOverride:   s.v.GetString(KeyVersionOverride),
			Renderer:          s.v.GetString(KeyRenderer),
			GPU:               s.v.GetInt(KeyGPU),
			DesktopMode:       s.v.GetBool(KeyDesktopMode),
			MultipleDesktops:  s.v.GetBool(KeyMultipleDesktops),
			DesktopResolution: s.v.GetString(KeyDesktopResolution),
			CustomEnv:         env,
		},
		Wine: Runtime{
			Source:  s.v.GetString(KeyWineSource),
			Version: s.v.GetString(KeyWineVersion),
			Root:    s.v.GetString(KeyWineRoot),
		},
		Dxvk: Runtime{
			Source:  s.v.GetString(KeyDxvkSource),
			Version: s.v.GetString(KeyDxvkVersion),
			Root:    s.v.GetString(KeyDxvkRoot),
		},
		DxvkEnabled: s.v.GetBool(KeyDxvkEnabled),
		Endpoints: Endpoints{
			ClientSettings: strings.TrimRight(s.v.GetString(KeyClientSettingsURL), "/"),
			CDN:            strings.TrimRight(s.v.GetString(KeyCDNURL), "/"),
			GitHubAPI:      strings.TrimRight(s.v.GetString(KeyGitHubAPIURL), "/"),
		},
	}
}

var (
	boolKeys = map[string]bool{
		KeyDesktopMode: true, KeyMultipleDesktops: true, KeyDxvkEnabled: true,
	}
	intKeys = map[string]bool{KeyGPU: true}

	enumKeys = map[string][]string{
		KeyRenderer:   {"D3D11", "D3D11FL10", "Vulkan", "OpenGL"},
		KeyWineSource: {"System", "Custom", "Vinegar", "ProtonGE"},
		KeyDxvkSource: {"Official", "Sarek", "Custom"},
	}
)

// coerce converts a string from the command line to the stored type.
func coerce(key, value string) (interface{}, error) {
	switch {
	case boolKeys[key]:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, apperr.Newf(apperr.KindConfig, "set "+key, "%q is not a boolean", value)
		}
		return b, nil
	case intKeys[key]:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, apperr.Newf(apperr.KindConfig, "set "+key, "%q is not an integer", value)
		}
		if key == KeyGPU && n < -1 {
			return nil, apperr.Newf(apperr.KindConfig, "set "+key, "gpu index must be -1 (auto) or greater")
		}
		return n, nil
	case key == KeyDesktopResolution:
		if !validResolution(value) {
			return nil, apperr.Newf(apperr.KindConfig, "set "+key, "%q is not WIDTHxHEIGHT", value)
		}
		return value, nil
	}

	if allowed, ok := enumKeys[key]; ok {
		for _, a := range allowed {
			if strings.EqualFold(a, value) {
				return a, nil
			}
		}
		return nil, apperr.Newf(apperr.KindConfig, "set "+key,
			"%q is not one of %s", value, strings.Join(allowed, ", "))
	}
	return value, nil
}

func validResolution(s string) bool {
	var w, h int
	n, err := fmt.Sscanf(s, "%dx%d", &w, &h)
	return err == nil && n == 2 && w > 0 && h > 0 && fmt.Sprintf("%dx%d", w, h) == s
}
