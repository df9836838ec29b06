// Package config provides application configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxMaxInstances      = 20
	maxRequestsPerMinute = 1000
	maxBurstAllowance    = 500
	maxBrowserTimeout    = 10 * time.Minute
	maxSessionTimeout    = 24 * time.Hour
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// Cluster settings
	MaxInstances   int
	BrowserTimeout time.Duration

	// Rate governor settings
	RequestsPerMinute int
	BurstAllowance    int

	// Session persistence
	SessionTimeout time.Duration
	CacheDir       string

	// Logging
	LogLevel string

	// CAPTCHA solving
	CaptchaEnabled         bool
	TwoCaptchaAPIKey       string
	CapSolverAPIKey        string
	CaptchaPrimaryProvider string        // "2captcha" or "capsolver"
	CaptchaSolverTimeout   time.Duration // per external service call

	// Fingerprinting
	PersonaFamilies []string // which persona pools to draw from

	// Detection patterns
	PatternsPath      string // external patterns.yaml override
	PatternsHotReload bool
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - default to localhost for security
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8620),

		// Browser
		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		// Cluster
		MaxInstances:   getEnvInt("MAX_INSTANCES", 5),
		BrowserTimeout: getEnvDuration("BROWSER_TIMEOUT", 30*time.Second),

		// Rate governor
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 10),
		BurstAllowance:    getEnvInt("BURST_ALLOWANCE", 20),

		// Sessions
		SessionTimeout: getEnvDuration("SESSION_TIMEOUT", 30*time.Minute),
		CacheDir:       getEnvString("CACHE_DIR", defaultCacheDir()),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),

		// CAPTCHA
		CaptchaEnabled:         getEnvBool("CAPTCHA_ENABLED", false),
		TwoCaptchaAPIKey:       getEnvString("TWOCAPTCHA_API_KEY", ""),
		CapSolverAPIKey:        getEnvString("CAPSOLVER_API_KEY", ""),
		CaptchaPrimaryProvider: getEnvString("CAPTCHA_PRIMARY_PROVIDER", "2captcha"),
		CaptchaSolverTimeout:   getEnvDuration("CAPTCHA_SOLVER_TIMEOUT", 120*time.Second),

		// Fingerprinting
		PersonaFamilies: getEnvStringSlice("PERSONA_FAMILIES", nil),

		// Patterns
		PatternsPath:      getEnvString("PATTERNS_PATH", ""),
		PatternsHotReload: getEnvBool("PATTERNS_HOT_RELOAD", false),
	}
}

// SessionsDir returns the directory holding persisted session files.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.CacheDir, "sessions")
}

// defaultCacheDir returns ~/.cache/ice-locator, falling back to the
// working directory when the home directory cannot be resolved.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cache"
	}
	return filepath.Join(home, ".cache", "ice-locator")
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults. Configuration problems
// that cannot be corrected are fatal at initialization, never later.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8620")
		c.Port = 8620
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" && strings.Contains(c.BrowserPath, "..") {
		log.Error().
			Str("path", c.BrowserPath).
			Msg("BROWSER_PATH contains path traversal sequence (..), ignoring")
		c.BrowserPath = ""
	}

	// Instance count bounds
	if c.MaxInstances < 1 {
		log.Warn().Int("max_instances", c.MaxInstances).Msg("Invalid instance count, using default 5")
		c.MaxInstances = 5
	} else if c.MaxInstances > maxMaxInstances {
		log.Warn().
			Int("max_instances", c.MaxInstances).
			Int("max", maxMaxInstances).
			Msg("Instance count too large, capping to maximum")
		c.MaxInstances = maxMaxInstances
	}

	// Rate governor bounds
	if c.RequestsPerMinute < 1 {
		log.Warn().Int("rpm", c.RequestsPerMinute).Msg("Invalid request rate, using default 10")
		c.RequestsPerMinute = 10
	} else if c.RequestsPerMinute > maxRequestsPerMinute {
		log.Warn().
			Int("rpm", c.RequestsPerMinute).
			Int("max", maxRequestsPerMinute).
			Msg("Request rate too high, capping to maximum")
		c.RequestsPerMinute = maxRequestsPerMinute
	}
	if c.BurstAllowance < 0 {
		log.Warn().Int("burst", c.BurstAllowance).Msg("Invalid burst allowance, using default 20")
		c.BurstAllowance = 20
	} else if c.BurstAllowance > maxBurstAllowance {
		log.Warn().
			Int("burst", c.BurstAllowance).
			Int("max", maxBurstAllowance).
			Msg("Burst allowance too high, capping to maximum")
		c.BurstAllowance = maxBurstAllowance
	}

	// Browser timeout bounds (minimum 1 second)
	if c.BrowserTimeout < time.Second {
		log.Warn().Dur("timeout", c.BrowserTimeout).Msg("Browser timeout too short, using 30s")
		c.BrowserTimeout = 30 * time.Second
	} else if c.BrowserTimeout > maxBrowserTimeout {
		log.Warn().
			Dur("timeout", c.BrowserTimeout).
			Dur("max", maxBrowserTimeout).
			Msg("Browser timeout too long, capping to maximum")
		c.BrowserTimeout = maxBrowserTimeout
	}

	// Session timeout bounds (minimum 1 minute)
	if c.SessionTimeout < time.Minute {
		log.Warn().Dur("timeout", c.SessionTimeout).Msg("Session timeout too short, using minimum 1m")
		c.SessionTimeout = time.Minute
	} else if c.SessionTimeout > maxSessionTimeout {
		log.Warn().
			Dur("timeout", c.SessionTimeout).
			Dur("max", maxSessionTimeout).
			Msg("Session timeout too long, capping to maximum")
		c.SessionTimeout = maxSessionTimeout
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	c.validateCaptchaConfig()

	// Patterns path validation
	if c.PatternsPath != "" && strings.Contains(c.PatternsPath, "..") {
		log.Error().
			Str("path", c.PatternsPath).
			Msg("PATTERNS_PATH contains path traversal sequence (..), ignoring")
		c.PatternsPath = ""
	}
	if c.PatternsHotReload && c.PatternsPath == "" {
		log.Warn().Msg("PATTERNS_HOT_RELOAD enabled but PATTERNS_PATH not set - hot-reload disabled")
		c.PatternsHotReload = false
	}
}

// validateCaptchaConfig validates CAPTCHA solver configuration.
func (c *Config) validateCaptchaConfig() {
	const minSolverTimeout = 30 * time.Second
	const maxSolverTimeout = 300 * time.Second
	if c.CaptchaSolverTimeout < minSolverTimeout {
		log.Warn().
			Dur("timeout", c.CaptchaSolverTimeout).
			Dur("min", minSolverTimeout).
			Msg("CAPTCHA_SOLVER_TIMEOUT too short, using minimum")
		c.CaptchaSolverTimeout = minSolverTimeout
	} else if c.CaptchaSolverTimeout > maxSolverTimeout {
		log.Warn().
			Dur("timeout", c.CaptchaSolverTimeout).
			Dur("max", maxSolverTimeout).
			Msg("CAPTCHA_SOLVER_TIMEOUT too long, using maximum")
		c.CaptchaSolverTimeout = maxSolverTimeout
	}

	validProviders := map[string]bool{"2captcha": true, "capsolver": true}
	if c.CaptchaPrimaryProvider != "" && !validProviders[strings.ToLower(c.CaptchaPrimaryProvider)] {
		log.Warn().
			Str("provider", c.CaptchaPrimaryProvider).
			Msg("Invalid CAPTCHA_PRIMARY_PROVIDER, using '2captcha'")
		c.CaptchaPrimaryProvider = "2captcha"
	}
	c.CaptchaPrimaryProvider = strings.ToLower(c.CaptchaPrimaryProvider)

	if c.CaptchaEnabled && c.TwoCaptchaAPIKey == "" && c.CapSolverAPIKey == "" {
		log.Warn().Msg("CAPTCHA_ENABLED is true but no API keys configured (TWOCAPTCHA_API_KEY or CAPSOLVER_API_KEY) - only bypass and local strategies will run")
	}
}

// HasExternalSolvers returns true if external CAPTCHA solving is configured.
func (c *Config) HasExternalSolvers() bool {
	return c.CaptchaEnabled && (c.TwoCaptchaAPIKey != "" || c.CapSolverAPIKey != "")
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
