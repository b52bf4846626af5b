package webhook

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Registration-time URL validation. A callback URL is attacker-supplied
// input: anything that could point the delivery engine at internal network
// resources is rejected up front (SSRF prevention).
var (
	ErrInsecureScheme = errors.New("webhook URL must use https")
	ErrMissingHost    = errors.New("webhook URL has no host")
	ErrBlockedAddress = errors.New("webhook URL resolves to a blocked address")
)

// URLValidator checks owner-registered callback URLs. The lookup function is
// injectable so validation is testable without DNS.
type URLValidator struct {
	lookupIP func(host string) ([]net.IP, error)
}

func NewURLValidator() *URLValidator {
	return &URLValidator{lookupIP: net.LookupIP}
}

// NewURLValidatorWithLookup builds a validator over a custom resolver.
func NewURLValidatorWithLookup(lookup func(host string) ([]net.IP, error)) *URLValidator {
	return &URLValidator{lookupIP: lookup}
}

// Validate rejects non-https schemes and any host that is, or resolves to,
// a loopback, link-local, private or unspecified address.
func (v *URLValidator) Validate(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return ErrInsecureScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrMissingHost
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return ErrBlockedAddress
		}
		return nil
	}

	if host == "localhost" {
		return ErrBlockedAddress
	}

	ips, err := v.lookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve webhook host %q: %w", host, err)
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return ErrBlockedAddress
		}
	}

	return nil
}

// isBlockedIP covers loopback, RFC 1918 v4 blocks, 169.254/16, 0/8, IPv6
// unique-local (via IsPrivate) and link-local ranges.
func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil && v4[0] == 0 {
		return true
	}
	return false
}
