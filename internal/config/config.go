package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/branding"
	"github.com/spf13/viper"
)

const fileType = "yaml"

// Setting keys.
const (
	KeyChannel           = "general.channel"
	KeyVersionOverride   = "general.version_override"
	KeyRenderer          = "general.renderer"
	KeyGPU               = "general.gpu"
	KeyDesktopMode       = "general.desktop_mode"
	KeyMultipleDesktops  = "general.multiple_desktops"
	KeyDesktopResolution = "general.desktop_resolution"
	KeyCustomEnv         = "general.env"

	KeyWineSource  = "wine.source"
	KeyWineVersion = "wine.version"
	KeyWineRoot    = "wine.root"

	KeyDxvkEnabled = "dxvk.enabled"
	KeyDxvkSource  = "dxvk.source"
	KeyDxvkVersion = "dxvk.version"
	KeyDxvkRoot    = "dxvk.root"

	KeyClientSettingsURL = "endpoints.client_settings"
	KeyCDNURL            = "endpoints.cdn"
	KeyGitHubAPIURL      = "endpoints.github_api"
)

// Default endpoint values.
const (
	DefaultClientSettingsURL = "https://clientsettingscdn.roblox.com"
	DefaultCDNURL            = "https://setup.rbxcdn.com"
	DefaultGitHubAPIURL      = "https://api.github.com"
)

var defaults = map[string]interface{}{
	KeyChannel:           "production",
	KeyVersionOverride:   "",
	KeyRenderer:          "D3D11",
	KeyGPU:               -1,
	KeyDesktopMode:       false,
	KeyMultipleDesktops:  false,
	KeyDesktopResolution: "1920x1080",
	KeyWineSource:        "System",
	KeyWineVersion:       "Latest",
	KeyWineRoot:          "",
	KeyDxvkEnabled:       true,
	KeyDxvkSource:        "Official",
	KeyDxvkVersion:       "Latest",
	KeyDxvkRoot:          "",
	KeyClientSettingsURL: DefaultClientSettingsURL,
	KeyCDNURL:            DefaultCDNURL,
	KeyGitHubAPIURL:      DefaultGitHubAPIURL,
}

// Store is the settings file backed by a private viper instance.
type Store struct {
	v    *viper.Viper
	path string
}

// Load reads the settings file at path. A missing file is not an error;
// defaults apply until the first Set.
func Load(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(fileType)
	v.SetEnvPrefix(branding.EnvPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, "reading "+path, err)
		}
	}
	return &Store{v: v, path: path}, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Get returns a config value by key. Returns empty string if not set.
func (s *Store) Get(key string) string {
	return s.v.GetString(key)
}

// IsSet reports whether key has a value, either explicit or default.
func (s *Store) IsSet(key string) bool {
	return s.v.IsSet(key)
}

// Set writes a config key-value pair and saves the config file.
// Values for known boolean and integer keys are validated first.
func (s *Store) Set(key string, value interface{}) error {
	if str, ok := value.(string); ok {
		coerced, err := coerce(key, str)
		if err != nil {
			return err
		}
		value = coerced
	}
	s.v.Set(key, value)
	return s.save()
}

// Unset resets key to its default value.
func (s *Store) Unset(key string) error {
	s.v.Set(key, defaults[key])
	return s.save()
}

// AllSettings returns the nested settings map.
func (s *Store) AllSettings() map[string]interface{} {
	return s.v.AllSettings()
}

// RecordRoot persists a provisioned runtime root for the named component
// ("wine" or "dxvk").
func (s *Store) RecordRoot(component, root string) error {
	switch component {
	case "wine":
		s.v.Set(KeyWineRoot, root)
	case "dxvk":
		s.v.Set(KeyDxvkRoot, root)
	default:
		return apperr.Newf(apperr.KindConfig, "record root", "unknown component %q", component)
	}
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Create the file if it doesn't exist.
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", s.path, err)
		}
		f.Close()
	}

	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
