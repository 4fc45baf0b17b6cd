package internal

import (
	"fmt"
	"runtime"

	"github.com/whisper/spamguard/internal/config"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

// FormatVersion returns the version string with the git commit when known.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns the build time and Go version.
func FormatBuildInfo() (string, string) {
	return buildTime, runtime.Version()
}

// LoadConfig reads .env and the environment without requiring a bot token.
func LoadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ValidateSettings(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
