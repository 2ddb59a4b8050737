package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName  = "colloquy"
	configFileName = "config.jsonc"
)

// ResolvePath picks the config file: an explicit --config path (with a
// leading ~ expanded), then $XDG_CONFIG_HOME, then ~/.config.
func ResolvePath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return expandHome(explicit)
	}

	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("cannot locate config: neither XDG_CONFIG_HOME nor a home directory is available")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("cannot expand ~ in config path: no home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}
