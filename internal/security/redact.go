package security

import (
	"net/url"
	"strings"
)

// sensitiveParamPatterns are query parameter names that likely contain secrets.
var sensitiveParamPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"auth",
	"credential",
	"key",
	"session",
	"sid",
}

// RedactURL removes credentials and secret-looking query parameters from a
// URL so it can be logged safely.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.User != nil {
		parsed.User = url.User("[REDACTED]")
	}

	if parsed.RawQuery != "" {
		params := parsed.Query()
		for key := range params {
			keyLower := strings.ToLower(key)
			for _, pattern := range sensitiveParamPatterns {
				if strings.Contains(keyLower, pattern) {
					params[key] = []string{"[REDACTED]"}
					break
				}
			}
		}
		parsed.RawQuery = params.Encode()
	}

	return parsed.String()
}

// RedactKey shortens an API key to its first four characters for logging.
func RedactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", 4)
}
