// Package cookies provides cookie validation, classification, rotation, and
// realistic expiry handling for browser sessions. Values are rotated on a
// per-category schedule so long-lived jars do not look frozen to the server.
package cookies

import (
	"strings"
	"time"

	"github.com/trose/ice-locator-go/internal/security"
)

// Category classifies a cookie for rotation policy purposes.
type Category string

// Cookie categories.
const (
	CategorySession    Category = "session"
	CategoryPersistent Category = "persistent"
	CategoryTracking   Category = "tracking"
)

// Cookie is a neutral cookie record, independent of the browser's wire shape.
type Cookie struct {
	Name         string     `json:"name"`
	Value        string     `json:"value"`
	Domain       string     `json:"domain"`
	Path         string     `json:"path"`
	Expires      *time.Time `json:"expires,omitempty"` // nil means session cookie
	HTTPOnly     bool       `json:"http_only"`
	Secure       bool       `json:"secure"`
	SameSite     string     `json:"same_site"`
	CreationTime time.Time  `json:"creation_time"`
	LastAccess   time.Time  `json:"last_access"`
}

// trackingDomains are registrable domains of well-known trackers. Matching
// is on the cookie domain's eTLD+1 so subdomain cookies classify the same.
var trackingDomains = map[string]bool{
	"google-analytics.com":  true,
	"doubleclick.net":       true,
	"googlesyndication.com": true,
	"googletagmanager.com":  true,
	"facebook.com":          true,
	"adsystem.com":          true,
	"adservice.google.com":  true,
}

// Expired reports whether the cookie's expiry has passed. An expiry exactly
// at now counts as expired. Session cookies never expire by time.
func (c *Cookie) Expired(now time.Time) bool {
	if c.Expires == nil {
		return false
	}
	return !c.Expires.After(now)
}

// IsSessionCookie reports whether the cookie has no expiry.
func (c *Cookie) IsSessionCookie() bool {
	return c.Expires == nil
}

// Age returns the time since the cookie's value was (re)generated.
func (c *Cookie) Age(now time.Time) time.Duration {
	return now.Sub(c.CreationTime)
}

// CategoryOf derives the rotation category from domain and expiry.
// Tracking wins over the session/persistent split.
func (c *Cookie) CategoryOf() Category {
	host := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if trackingDomains[host] || trackingDomains[security.RegistrableDomain(c.Domain)] {
		return CategoryTracking
	}
	if c.IsSessionCookie() {
		return CategorySession
	}
	return CategoryPersistent
}

// Valid reports whether the cookie has the minimum required fields.
func (c *Cookie) Valid() bool {
	return c.Name != "" && c.Domain != ""
}
