package cookies

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxPersistentLifetime caps cookie expiries at one year ahead.
const maxPersistentLifetime = 365 * 24 * time.Hour

// rotationPolicy controls when and how often a category's values rotate.
type rotationPolicy struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Probability float64
}

// rotationPolicies is the per-category rotation table.
var rotationPolicies = map[Category]rotationPolicy{
	CategorySession:    {MinInterval: 300 * time.Second, MaxInterval: 1800 * time.Second, Probability: 0.10},
	CategoryPersistent: {MinInterval: 3600 * time.Second, MaxInterval: 86400 * time.Second, Probability: 0.05},
	CategoryTracking:   {MinInterval: 1800 * time.Second, MaxInterval: 7200 * time.Second, Probability: 0.20},
}

// Manager validates, ages, and rotates cookies. The clock and random source
// are injected so tests can pin both.
type Manager struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewManager creates a cookie manager.
func NewManager(rng *rand.Rand) *Manager {
	return &Manager{rng: rng, now: time.Now}
}

// NewManagerWithClock creates a cookie manager with a fixed clock, for tests.
func NewManagerWithClock(rng *rand.Rand, now func() time.Time) *Manager {
	return &Manager{rng: rng, now: now}
}

// Validate drops cookies with missing name/domain or a past expiry and
// updates last-access on the survivors.
func (m *Manager) Validate(in []Cookie) []Cookie {
	now := m.now()
	out := make([]Cookie, 0, len(in))
	var expired, invalid int

	for _, c := range in {
		if !c.Valid() {
			invalid++
			continue
		}
		if c.Expired(now) {
			expired++
			continue
		}
		c.LastAccess = now
		out = append(out, c)
	}

	if expired > 0 || invalid > 0 {
		log.Debug().
			Int("valid", len(out)).
			Int("expired", expired).
			Int("invalid", invalid).
			Msg("Validated cookies")
	}
	return out
}

// CapExpiry clamps expiries more than a year out to one year and converts
// already-past expiries into session cookies.
func (m *Manager) CapExpiry(in []Cookie) []Cookie {
	now := m.now()
	out := make([]Cookie, 0, len(in))

	for _, c := range in {
		if c.Expires != nil {
			maxExpiry := now.Add(maxPersistentLifetime)
			switch {
			case c.Expires.After(maxExpiry):
				capped := maxExpiry
				c.Expires = &capped
			case !c.Expires.After(now):
				c.Expires = nil
			}
		}
		out = append(out, c)
	}
	return out
}

// Rotate replaces values of cookies that are due for rotation under their
// category's policy. Rotated cookies get a fresh creation time.
func (m *Manager) Rotate(in []Cookie) []Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Cookie, 0, len(in))
	rotated := 0

	for _, c := range in {
		policy := rotationPolicies[c.CategoryOf()]
		due := c.Age(now) >= policy.MinInterval
		if due && m.rng.Float64() < policy.Probability && !c.Expired(now) {
			c.Value = m.regenerateValue(c.Value)
			c.CreationTime = now
			c.LastAccess = now
			rotated++
		} else {
			c.LastAccess = now
		}
		out = append(out, c)
	}

	if rotated > 0 {
		log.Debug().Int("count", rotated).Msg("Rotated cookies")
	}
	return out
}

// PrepareForSession runs the full pipeline: validate, cap expiry, rotate.
// Survivors come back with fresh last-access times.
func (m *Manager) PrepareForSession(in []Cookie) []Cookie {
	out := m.Rotate(m.CapExpiry(m.Validate(in)))
	log.Debug().Int("count", len(out)).Msg("Prepared cookies for session")
	return out
}

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	letters      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
)

// regenerateValue produces a replacement value that preserves the shape of
// the original. Session-id-like values (long, containing digits) are fully
// regenerated at identical length; mid-length values get 1-3 in-place
// mutations preserving character class; short values are regenerated.
// Callers must hold m.mu.
func (m *Manager) regenerateValue(original string) string {
	n := len(original)
	switch {
	case n >= 10 && containsDigit(original):
		return m.randomString(alphanumeric, n)
	case n >= 5:
		value := []byte(original)
		changes := 1 + m.rng.Intn(3)
		if changes > n {
			changes = n
		}
		for i := 0; i < changes; i++ {
			pos := m.rng.Intn(n)
			switch {
			case isLetter(value[pos]):
				value[pos] = letters[m.rng.Intn(len(letters))]
			case isDigit(value[pos]):
				value[pos] = digits[m.rng.Intn(len(digits))]
			}
		}
		return string(value)
	default:
		return m.randomString(alphanumeric, n)
	}
}

func (m *Manager) randomString(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[m.rng.Intn(len(alphabet))]
	}
	return string(b)
}

func containsDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
