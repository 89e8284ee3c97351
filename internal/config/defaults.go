package config

import "time"

// DefaultEndpoint is the endpoint name used when none is configured.
const DefaultEndpoint = "soloist"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Timeouts: TimeoutConfig{
			Connect:  500 * time.Millisecond,
			Send:     time.Second,
			Response: 3 * time.Second,
		},
		Server: ServerConfig{
			MaxFrameBytes: 1 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}
