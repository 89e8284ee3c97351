package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Endpoint string       `toml:"endpoint"`
	Timeouts fileTimeouts `toml:"timeouts"`
	Server   fileServer   `toml:"server"`
	Log      fileLog      `toml:"log"`
}

type fileTimeouts struct {
	ConnectMS  int64 `toml:"connect_ms"`
	SendMS     int64 `toml:"send_ms"`
	ResponseMS int64 `toml:"response_ms"`
}

type fileServer struct {
	MaxFrameBytes int    `toml:"max_frame_bytes"`
	MetricsFile   string `toml:"metrics_file"`
}

type fileLog struct {
	Level string `toml:"level"`
}

// Parse decodes TOML content over base. Only keys present in the document
// replace base values; unknown keys become warnings.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	if strings.TrimSpace(content) == "" {
		return cfg, nil, nil
	}

	var raw fileConfig
	meta, err := toml.Decode(content, &raw)
	if err != nil {
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			return Config{}, nil, fmt.Errorf("line %d: %s", parseErr.Position.Line, parseErr.Message)
		}
		return Config{}, nil, err
	}

	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("timeouts", "connect_ms") {
		cfg.Timeouts.Connect = time.Duration(raw.Timeouts.ConnectMS) * time.Millisecond
	}
	if meta.IsDefined("timeouts", "send_ms") {
		cfg.Timeouts.Send = time.Duration(raw.Timeouts.SendMS) * time.Millisecond
	}
	if meta.IsDefined("timeouts", "response_ms") {
		cfg.Timeouts.Response = time.Duration(raw.Timeouts.ResponseMS) * time.Millisecond
	}
	if meta.IsDefined("server", "max_frame_bytes") {
		cfg.Server.MaxFrameBytes = raw.Server.MaxFrameBytes
	}
	if meta.IsDefined("server", "metrics_file") {
		cfg.Server.MetricsFile = strings.TrimSpace(raw.Server.MetricsFile)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}

	warnings := make([]Warning, 0)
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("unknown key %q ignored", key.String())})
	}
	return cfg, warnings, nil
}
