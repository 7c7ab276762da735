// Package config manages user-level settings stored at ~/.rsjfw/config.yaml
// and the process-level RSJFW_* environment.
//
// The settings file is read and written through a viper instance; Settings
// is the typed view the launch pipeline consumes. Env carries the handful of
// variables that must be known before the settings file can be located.
package config
