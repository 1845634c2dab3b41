// internal/common/urlcheck/urlcheck.go
package urlcheck

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Policy validates webhook destination URLs before any HTTP call is made.
// Rejections are terminal: loopback, link-local and private ranges are never
// retried.
type Policy struct {
	// AllowPrivate disables the IP range checks. Only for local development.
	AllowPrivate bool

	// lookup is swapped in tests.
	lookup func(host string) ([]net.IP, error)
}

func NewPolicy(allowPrivate bool) *Policy {
	return &Policy{
		AllowPrivate: allowPrivate,
		lookup:       net.LookupIP,
	}
}

// Validate returns an error when rawURL violates the SSRF policy.
func (p *Policy) Validate(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed, must be http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	if p.AllowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	ips, err := p.lookup(host)
	if err != nil {
		return fmt.Errorf("host %q did not resolve: %w", host, err)
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address %s not allowed", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s not allowed", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private address %s not allowed", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address %s not allowed", ip)
	}
	return nil
}
