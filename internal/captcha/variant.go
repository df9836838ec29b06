// Package captcha detects anti-bot challenges in page content and drives
// solving strategies: waiting out interstitials, answering local puzzles,
// and dispatching to external solving services.
package captcha

import "time"

// Variant identifies a challenge type.
type Variant string

// Challenge variants.
const (
	RecaptchaV2 Variant = "recaptcha_v2"
	RecaptchaV3 Variant = "recaptcha_v3"
	HCaptcha    Variant = "hcaptcha"
	Image       Variant = "image_captcha"
	Text        Variant = "text_captcha"
	Cloudflare  Variant = "cloudflare"
	FunCaptcha  Variant = "funcaptcha"
	Unknown     Variant = "unknown"
)

// ParseVariant maps a user-supplied string to a Variant, defaulting to
// Unknown.
func ParseVariant(s string) Variant {
	switch Variant(s) {
	case RecaptchaV2, RecaptchaV3, HCaptcha, Image, Text, Cloudflare, FunCaptcha:
		return Variant(s)
	default:
		return Unknown
	}
}

// Status tracks a challenge through its solving lifecycle.
type Status string

// Challenge statuses. Detected challenges move to solving on dispatch and
// end in exactly one terminal state.
const (
	StatusDetected    Status = "detected"
	StatusSolving     Status = "solving"
	StatusSolved      Status = "solved"
	StatusFailed      Status = "failed"
	StatusBypassed    Status = "bypassed"
	StatusUnsupported Status = "unsupported"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSolved, StatusFailed, StatusBypassed, StatusUnsupported:
		return true
	}
	return false
}

// Challenge is one detected anti-bot obstacle.
type Challenge struct {
	Variant    Variant   `json:"variant"`
	Confidence float64   `json:"confidence"`
	PageURL    string    `json:"page_url"`
	SessionID  string    `json:"session_id"`
	DetectedAt time.Time `json:"detected_at"`

	// Variant-specific payload
	SiteKey  string `json:"site_key,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Question string `json:"question,omitempty"`

	// Solving outcome
	Status    Status        `json:"status"`
	Solution  string        `json:"solution,omitempty"`
	SolveTime time.Duration `json:"solve_time,omitempty"`
}

// Strategy describes one way of solving a variant, ordered by priority.
type Strategy struct {
	Variant      Variant
	Priority     int
	Enabled      bool
	SuccessRate  float64
	AvgSolveTime time.Duration
	CostPerSolve float64
}

// defaultStrategies is the built-in strategy table. External-service
// strategies start disabled; configuring a provider enables them.
var defaultStrategies = []Strategy{
	{Variant: Text, Priority: 1, Enabled: true, SuccessRate: 0.8, AvgSolveTime: time.Second},
	{Variant: Cloudflare, Priority: 1, Enabled: true, SuccessRate: 0.9, AvgSolveTime: 15 * time.Second},
	{Variant: RecaptchaV3, Priority: 2, Enabled: true, SuccessRate: 0.7, AvgSolveTime: 3 * time.Second},
	{Variant: Image, Priority: 3, Enabled: false, SuccessRate: 0.5, AvgSolveTime: 10 * time.Second},
	{Variant: FunCaptcha, Priority: 4, Enabled: false, SuccessRate: 0.8, AvgSolveTime: 25 * time.Second, CostPerSolve: 0.001},
	{Variant: RecaptchaV2, Priority: 4, Enabled: false, SuccessRate: 0.9, AvgSolveTime: 30 * time.Second, CostPerSolve: 0.001},
	{Variant: HCaptcha, Priority: 4, Enabled: false, SuccessRate: 0.85, AvgSolveTime: 25 * time.Second, CostPerSolve: 0.001},
}
