// Package target normalizes and validates the domain a run is pointed at.
package target

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// ErrInvalidTarget is returned when the target is not a usable domain name.
var ErrInvalidTarget = errors.New("invalid target domain")

// profile converts internationalized names to their ASCII form. It also
// rejects labels with leading or trailing hyphens and non-STD3 characters.
var profile = idna.Lookup

// Normalize turns user input such as "https://Example.COM:443/path" into the
// bare lower-case ASCII domain "example.com".
//
// A scheme, userinfo, port, path, query and trailing dot are removed.
// IP addresses and single-label names are rejected.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidTarget, raw, err)
		}
		s = u.Host
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(s, ".")

	if s == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidTarget, raw)
	}
	if net.ParseIP(strings.Trim(s, "[]")) != nil {
		return "", fmt.Errorf("%w: %q is an IP address", ErrInvalidTarget, raw)
	}

	ascii, err := profile.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidTarget, raw, err)
	}
	ascii = strings.ToLower(ascii)

	if _, ok := dns.IsDomainName(ascii); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	if dns.CountLabel(ascii) < 2 {
		return "", fmt.Errorf("%w: %q is not a registrable domain", ErrInvalidTarget, raw)
	}
	return ascii, nil
}
