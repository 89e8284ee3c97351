// Package config resolves, parses, validates, and defaults soloist configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by soloist.
type Config struct {
	Endpoint string
	Timeouts TimeoutConfig
	Server   ServerConfig
	Log      LogConfig
}

// TimeoutConfig bounds each phase of a forwarding exchange.
type TimeoutConfig struct {
	Connect  time.Duration
	Send     time.Duration
	Response time.Duration
}

// ServerConfig tunes the primary instance's listener.
type ServerConfig struct {
	MaxFrameBytes int
	// MetricsFile, when set, receives a Prometheus textfile at shutdown.
	MetricsFile string
}

// LogConfig controls the runtime log level.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
