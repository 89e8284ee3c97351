package config

import (
	"fmt"
	"strings"
)

const minFrameBytes = 64

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if cfg.Timeouts.Connect <= 0 {
		return nil, fmt.Errorf("timeouts.connect_ms must be > 0")
	}
	if cfg.Timeouts.Send <= 0 {
		return nil, fmt.Errorf("timeouts.send_ms must be > 0")
	}
	if cfg.Timeouts.Response <= 0 {
		return nil, fmt.Errorf("timeouts.response_ms must be > 0")
	}
	if cfg.Server.MaxFrameBytes <= 0 {
		return nil, fmt.Errorf("server.max_frame_bytes must be > 0")
	}
	if cfg.Server.MaxFrameBytes < minFrameBytes {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("server.max_frame_bytes=%d is very small; long argument lists will be rejected", cfg.Server.MaxFrameBytes)})
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}
