// Package security provides input validation and log redaction utilities.
package security

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// dnsLookupTimeout bounds hostname resolution so validation cannot hang on
// an unresponsive resolver.
const dnsLookupTimeout = 5 * time.Second

// URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrBlockedScheme    = errors.New("URL scheme not allowed")
	ErrPrivateIPBlocked = errors.New("private/internal IP addresses are not allowed")
	ErrLocalhostBlocked = errors.New("localhost URLs are not allowed")
	ErrMetadataBlocked  = errors.New("cloud metadata URLs are not allowed")
	ErrEmptyHostname    = errors.New("empty hostname")
	ErrInvalidIDN       = errors.New("invalid internationalized domain name")
	ErrNoPublicSuffix   = errors.New("hostname has no public suffix")
	ErrDNSLookupFailed  = errors.New("DNS lookup failed or returned no IPs")
)

// idnaProfile is used for strict IDN validation.
var idnaProfile = idna.New(
	idna.ValidateLabels(true),
	idna.VerifyDNSLength(true),
	idna.StrictDomainName(true),
)

// allowedSchemes defines the permitted URL schemes for navigation targets.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// blockedHosts are hostnames that must never be navigated to, regardless of
// how they resolve.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata":                 true,
	"metadata.google.internal": true,
	"instance-data":            true,
	"kubernetes.default":       true,
	"kubernetes.default.svc":   true,
}

// metadataIPs are cloud metadata service addresses (SSRF targets).
var metadataIPs = []string{
	"169.254.169.254",
	"169.254.170.2",
	"100.100.100.200",
	"fd00:ec2::254",
}

// lookupIP resolves a hostname. Injectable so tests can stub resolution.
var lookupIP = lookupIPWithTimeout

// lookupIPWithTimeout performs DNS resolution with a deadline so a slow
// resolver cannot stall request validation.
func lookupIPWithTimeout(ctx context.Context, hostname string) ([]net.IP, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dnsLookupTimeout)
		defer cancel()
	}
	resolver := &net.Resolver{}
	return resolver.LookupIP(ctx, "ip", hostname)
}

// ValidateTargetURL checks that a caller-supplied navigation URL is safe:
// http(s) only, a syntactically valid public hostname, and neither the
// hostname nor any address it resolves to is a loopback, private-range,
// link-local, or cloud-metadata target.
func ValidateTargetURL(rawURL string) error {
	return ValidateTargetURLWithContext(context.Background(), rawURL)
}

// ValidateTargetURLWithContext is ValidateTargetURL with caller-controlled
// cancellation of the DNS lookup.
func ValidateTargetURLWithContext(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	if !allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return ErrBlockedScheme
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return ErrEmptyHostname
	}
	if blockedHosts[hostname] {
		return ErrLocalhostBlocked
	}

	// Literal IP targets, including decimal/octal/hex encodings that Chrome
	// would happily dial, are checked directly.
	if ip := parseIPHost(hostname); ip != nil {
		return validateIP(ip)
	}

	// Hostname targets: strict IDN validation catches malformed and
	// homograph-style names before they reach the browser.
	if _, err := idnaProfile.ToASCII(hostname); err != nil {
		return ErrInvalidIDN
	}

	// A navigable public site must sit under an ICANN-managed suffix.
	suffix, icann := publicsuffix.PublicSuffix(hostname)
	if !icann && !strings.Contains(suffix, ".") {
		return ErrNoPublicSuffix
	}

	// Resolve and validate every address the name points at, so a
	// rebinding domain cannot smuggle a request to an internal target.
	// Fail closed: a name that cannot be resolved is not navigated.
	ips, err := lookupIP(ctx, hostname)
	if err != nil || len(ips) == 0 {
		return ErrDNSLookupFailed
	}
	for _, ip := range ips {
		if err := validateIP(ip); err != nil {
			return err
		}
	}

	return nil
}

// parseIPHost interprets a hostname as an IP literal. Beyond the standard
// dotted-quad and IPv6 forms it normalizes the encodings browsers accept:
// a single decimal/octal/hex number (http://2130706433/) and dotted forms
// with octal or hex components (http://0177.0.0.1/).
func parseIPHost(hostname string) net.IP {
	host := strings.Trim(hostname, "[]")

	if ip := net.ParseIP(host); ip != nil {
		return ip
	}

	// Single-number form: the whole host is one 32-bit value.
	if v, err := parseIPComponent(host); err == nil {
		return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).To4()
	}

	// Dotted form with non-decimal components.
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return nil
	}
	var octets [4]byte
	for i, part := range parts {
		v, err := parseIPComponent(part)
		if err != nil || v > 255 {
			return nil
		}
		octets[i] = byte(v)
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3]).To4()
}

// parseIPComponent parses a decimal, octal (leading 0), or hex (0x) number.
func parseIPComponent(s string) (uint64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 32)
	case len(s) > 1 && s[0] == '0':
		return strconv.ParseUint(s[1:], 8, 32)
	default:
		return strconv.ParseUint(s, 10, 32)
	}
}

// validateIP rejects loopback, private, link-local, unspecified, and cloud
// metadata addresses. IPv4-mapped IPv6 addresses are unwrapped first so
// ::ffff:127.0.0.1 cannot slip through.
func validateIP(ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, meta := range metadataIPs {
		if ip.Equal(net.ParseIP(meta)) {
			return ErrMetadataBlocked
		}
	}
	if ip.IsLoopback() {
		return ErrLocalhostBlocked
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return ErrPrivateIPBlocked
	}
	return nil
}

// RegistrableDomain returns the eTLD+1 of a hostname, or the hostname itself
// when one cannot be derived. Leading dots (cookie-style domains) are ignored.
func RegistrableDomain(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), ".")
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return hostname
	}
	return domain
}
