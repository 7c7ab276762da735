package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rsjfw/rsjfw/internal/branding"
)

// Env is the process-level configuration read from RSJFW_* variables.
type Env struct {
	Root      string `envconfig:"ROOT"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev    bool   `envconfig:"LOG_DEV" default:"false"`
	SocketDir string `envconfig:"SOCKET_DIR" default:"/tmp"`
	Instance  string `envconfig:"INSTANCE" default:"studio"`
}

// LoadEnv reads Env from the environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process(branding.EnvPrefix(), &e); err != nil {
		return Env{}, fmt.Errorf("reading environment: %w", err)
	}
	return e, nil
}
