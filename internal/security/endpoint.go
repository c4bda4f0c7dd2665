package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBlockedURL is wrapped by every rejection from URLPolicy.Check.
var ErrBlockedURL = errors.New("security: blocked url")

// URLPolicy decides which documentation URLs the ingest fetcher may download.
type URLPolicy struct {
	// AllowPrivate admits loopback and private addresses. Tests and local
	// mirrors need it.
	AllowPrivate bool
	// AllowedHosts, when set, restricts fetches to these hosts and their
	// subdomains.
	AllowedHosts []string
	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
}

var blockedHosts = []string{"localhost", "metadata.google.internal", "metadata.google"}

// Check validates rawURL. Both the literal host and its resolved addresses
// are checked.
func (p URLPolicy) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL format", ErrBlockedURL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: scheme must be http or https", ErrBlockedURL)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: URL must have a host", ErrBlockedURL)
	}

	if len(p.AllowedHosts) > 0 && !hostAllowed(host, p.AllowedHosts) {
		return fmt.Errorf("%w: host %q is not in the allow list", ErrBlockedURL, host)
	}
	if p.AllowPrivate {
		return nil
	}

	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("%w: host %q is not allowed", ErrBlockedURL, host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve host %s", ErrBlockedURL, host)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			if err := checkIP(ip); err != nil {
				return fmt.Errorf("host %q resolves to a blocked address: %w", host, err)
			}
		}
	}
	return nil
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(a)
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback addresses are not allowed", ErrBlockedURL)
	case ip.IsPrivate():
		return fmt.Errorf("%w: private addresses are not allowed", ErrBlockedURL)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: link-local addresses are not allowed", ErrBlockedURL)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified addresses are not allowed", ErrBlockedURL)
	}
	return nil
}
