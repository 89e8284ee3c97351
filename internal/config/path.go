package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PathEnv names a config file to use when --config is not given.
const PathEnv = "SOLOIST_CONFIG"

// ResolvePath picks the config file: the --config value, then $SOLOIST_CONFIG,
// then $XDG_CONFIG_HOME/soloist/config.toml, then ~/.config/soloist/config.toml.
// A leading "~/" in an explicit path is expanded.
func ResolvePath(explicit string) (string, error) {
	candidate := strings.TrimSpace(explicit)
	if candidate == "" {
		candidate = strings.TrimSpace(os.Getenv(PathEnv))
	}
	if candidate != "" {
		return expandHome(candidate)
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "soloist", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "soloist", "config.toml"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for ~ in config path")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
