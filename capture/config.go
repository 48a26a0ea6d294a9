package capture

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvCollectorHost   = "TRACECAP_COLLECTOR_HOST"
	EnvCollectorAddr   = "TRACECAP_COLLECTOR_ADDR"
	EnvProbeTimeout    = "TRACECAP_PROBE_TIMEOUT"
	EnvReplayTimeout   = "TRACECAP_REPLAY_TIMEOUT"
	EnvShutdownTimeout = "TRACECAP_SHUTDOWN_TIMEOUT"
	EnvReplay          = "TRACECAP_REPLAY"
	EnvSessionToken    = "TRACECAP_TEST_SESSION_TOKEN"
)

// DefaultCollectorHost is the host name of the designated test collector.
const DefaultCollectorHost = "testcollector"

// Config controls when and how captured traces are replayed.
type Config struct {
	// CollectorHost is the host name a transport must target for replay to happen.
	CollectorHost string
	// CollectorAddr is the host:port probed for reachability. Empty means the
	// transport's own address is used when it reports one.
	CollectorAddr string
	// SessionToken identifies this test process to the collector.
	SessionToken    string
	ProbeTimeout    time.Duration
	ReplayTimeout   time.Duration
	ShutdownTimeout time.Duration
	// DisableReplay turns the forwarder off entirely.
	DisableReplay bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		CollectorHost:   DefaultCollectorHost,
		ProbeTimeout:    2 * time.Second,
		ReplayTimeout:   5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ConfigFromEnv returns the defaults overridden by TRACECAP_* variables.
// Unparseable values fall back to the defaults.
func ConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		CollectorHost:   getEnv(EnvCollectorHost, def.CollectorHost),
		CollectorAddr:   getEnv(EnvCollectorAddr, ""),
		SessionToken:    getEnv(EnvSessionToken, ""),
		ProbeTimeout:    parseDuration(getEnv(EnvProbeTimeout, ""), def.ProbeTimeout),
		ReplayTimeout:   parseDuration(getEnv(EnvReplayTimeout, ""), def.ReplayTimeout),
		ShutdownTimeout: parseDuration(getEnv(EnvShutdownTimeout, ""), def.ShutdownTimeout),
		DisableReplay:   !parseBool(getEnv(EnvReplay, ""), true),
	}
	if cfg.SessionToken == "" {
		cfg.SessionToken = uuid.NewString()
	}
	return cfg
}

// Merge returns c with every non-zero field of override applied.
func (c Config) Merge(override Config) (Config, error) {
	merged := c
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("capture: merging config: %w", err)
	}
	return merged, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses duration from string with default fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}

// parseBool parses bool from string with default fallback
func parseBool(s string, fallback bool) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return fallback
}
