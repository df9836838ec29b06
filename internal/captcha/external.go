package captcha

import "context"

// Provider is an external CAPTCHA solving service. Providers are tried in
// priority order until one returns a solution.
type Provider interface {
	// Name returns the provider name (e.g. "2captcha", "capsolver").
	Name() string

	// IsConfigured returns true if the provider has valid API credentials.
	IsConfigured() bool

	// Supports reports whether the provider can solve the given variant.
	Supports(v Variant) bool

	// Solve submits the challenge and blocks until a solution token is
	// available or the provider's timeout elapses.
	Solve(ctx context.Context, ch *Challenge) (string, error)
}
