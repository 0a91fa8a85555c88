// Package config provides configuration helpers for go-linguo commands.
package config

import (
	"fmt"
	"os"
)

// Default backend configuration.
const (
	DefaultAPIBaseURL = "https://api.linguo.app/v1"
	DefaultLogLevel   = "info"
)

// APIBaseURL returns the tutoring backend base URL from LINGUO_API_URL.
// Falls back to the provided default if not set.
func APIBaseURL(defaultURL string) string {
	if url := os.Getenv("LINGUO_API_URL"); url != "" {
		return url
	}
	if defaultURL != "" {
		return defaultURL
	}
	return DefaultAPIBaseURL
}

// APIKeyRequired returns the API key from LINGUO_API_KEY.
// Exits with usage help if not set.
func APIKeyRequired() string {
	key := os.Getenv("LINGUO_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: LINGUO_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: LINGUO_API_KEY=sk-... go run ./cmd/...")
		os.Exit(1)
	}
	return key
}

// LogLevel returns the log level from LINGUO_LOG_LEVEL or the default.
func LogLevel() string {
	if lvl := os.Getenv("LINGUO_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return DefaultLogLevel
}
