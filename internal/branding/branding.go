// Package branding holds the names the binary presents: command name,
// home directory, environment prefix and the managed application.
//
// branding.yaml is embedded into the binary; hard defaults apply when a
// field is missing from it.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName         string `yaml:"cli_name"`
	DisplayName     string `yaml:"display_name"`
	Description     string `yaml:"description"`
	HomeDir         string `yaml:"home_dir"`
	EnvPrefix       string `yaml:"env_prefix"`
	ApplicationName string `yaml:"application_name"`
	ApplicationExe  string `yaml:"application_exe"`
}

func load() {
	once.Do(func() {
		defaults = brand{
			CLIName:         "rsjfw",
			DisplayName:     "RSJFW",
			Description:     "Installs, configures and launches Roblox Studio through Wine",
			HomeDir:         ".rsjfw",
			EnvPrefix:       "RSJFW",
			ApplicationName: "Roblox Studio",
			ApplicationExe:  "RobloxStudioBeta.exe",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "rsjfw").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name (e.g., "RSJFW").
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".rsjfw").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "RSJFW").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// ApplicationName returns the display name of the managed application.
func ApplicationName() string { load(); return defaults.ApplicationName }

// ApplicationExe returns the file name of the managed application's executable.
func ApplicationExe() string { load(); return defaults.ApplicationExe }

// EnvVar prefixes suffix with EnvPrefix: EnvVar("root") is "RSJFW_ROOT".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
