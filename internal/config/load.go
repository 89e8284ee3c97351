package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// LogLevelEnv overrides log.level from the file when set.
const LogLevelEnv = "SOLOIST_LOG_LEVEL"

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg, warnings, err := finish(base, []Warning{{
				Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
			}})
			if err != nil {
				return Loaded{}, err
			}
			return Loaded{
				Path:     resolvedPath,
				Config:   cfg,
				Warnings: warnings,
				Exists:   false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}
	cfg, warnings, err = finish(cfg, warnings)
	if err != nil {
		return Loaded{}, fmt.Errorf("config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// finish applies environment overrides and re-validates.
func finish(cfg Config, warnings []Warning) (Config, []Warning, error) {
	if level := strings.TrimSpace(os.Getenv(LogLevelEnv)); level != "" {
		cfg.Log.Level = level
	}
	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}
