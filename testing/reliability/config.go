// Package reliability runs capture and writer stress scenarios. The suites are
// skipped unless TRACECAP_RELIABILITY_LEVEL is "basic" or "stress".
package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for sustained load
	MaxGoroutines int           // Maximum goroutines for concurrent tests
}

// getReliabilityConfig reads configuration from environment variables
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         getEnv("TRACECAP_RELIABILITY_LEVEL", ""),
		Duration:      parseDuration(getEnv("TRACECAP_RELIABILITY_DURATION", "5s")),
		MaxGoroutines: parseInt(getEnv("TRACECAP_RELIABILITY_MAX_GOROUTINES", "100")),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses integer from string with default fallback
func parseInt(s string) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return 100
}

// parseDuration parses duration from string with default fallback
func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil && duration > 0 {
		return duration
	}
	return 5 * time.Second
}
