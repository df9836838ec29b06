package captcha

import "testing"

func TestDetectHostile(t *testing.T) {
	tests := []struct {
		name string
		body string
		want HostileKind
	}{
		{"clean page", "<html><body><h1>OK</h1></body></html>", HostileNone},
		{"cf 1015", "<html><body>Error code: 1015 - You are being rate limited</body></html>", HostileRateLimited},
		{"cf 1020", "<html><body>Error code: 1020 - Access denied</body></html>", HostileBlocked},
		{"too many requests", "<html><body>Too many requests. Slow down.</body></html>", HostileRateLimited},
		{"generic rate limit", "<html><body>Rate limit exceeded</body></html>", HostileRateLimited},
		{"access denied", "<html><body>Access Denied</body></html>", HostileBlocked},
		{"you have been blocked", "<html><body>You have been blocked from this site</body></html>", HostileBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectHostile(tt.body); got != tt.want {
				t.Errorf("DetectHostile = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectHostileTruncatesLargeBodies(t *testing.T) {
	big := make([]byte, maxHostileScanLen+1024)
	for i := range big {
		big[i] = 'a'
	}
	// The hostile marker sits past the scan bound and must not match.
	body := string(big) + "rate limit"
	if got := DetectHostile(body); got != HostileNone {
		t.Errorf("DetectHostile scanned past the bound: %q", got)
	}
}
