package captcha

import (
	"regexp"
)

// HostileKind classifies a hostile page that carries no solvable challenge.
type HostileKind string

// Hostile page classifications.
const (
	HostileNone        HostileKind = ""
	HostileRateLimited HostileKind = "rate_limited"
	HostileBlocked     HostileKind = "blocked"
)

// hostilePattern pairs a body pattern with its classification, ordered most
// specific first. Patterns use [^<]{0,N} instead of .{0,N} to avoid
// backtracking across element boundaries on large HTML.
type hostilePattern struct {
	re   *regexp.Regexp
	kind HostileKind
}

var hostilePatterns = []hostilePattern{
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1015`), HostileRateLimited},
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}10(06|07|08|12|20)`), HostileBlocked},
	{regexp.MustCompile(`(?i)too\s{1,5}many\s{1,5}requests`), HostileRateLimited},
	{regexp.MustCompile(`(?i)rate\s{0,3}limit`), HostileRateLimited},
	{regexp.MustCompile(`(?i)access\s{1,5}denied`), HostileBlocked},
	{regexp.MustCompile(`(?i)you\s{1,5}(have\s{1,5}been\s{1,5})?blocked`), HostileBlocked},
}

// maxHostileScanLen bounds regex matching to keep pathological bodies cheap.
const maxHostileScanLen = 100 * 1024

// DetectHostile classifies a response body as rate-limited, blocked, or
// clean. It is consulted only after challenge detection finds nothing
// solvable on the page.
func DetectHostile(body string) HostileKind {
	if len(body) > maxHostileScanLen {
		body = body[:maxHostileScanLen]
	}
	for _, p := range hostilePatterns {
		if p.re.MatchString(body) {
			return p.kind
		}
	}
	return HostileNone
}
