// Package hostcheck decides whether a target host may be fetched at all.
// It rejects loopback, link-local, private (RFC1918/ULA), and denylisted
// targets before any transport touches the network.
package hostcheck

import (
	"context"
	"net"
	"strings"
)

// Result is the outcome of a host safety check.
type Result struct {
	Blocked bool
	Reason  string
}

// Checker validates hostnames against address ranges and a denylist.
// The zero value is usable; Denylist entries match the host or any
// parent domain.
type Checker struct {
	Denylist []string

	// Resolver overrides DNS resolution, for tests. Nil uses the
	// default resolver.
	Resolver func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// New creates a Checker with the given denylist.
func New(denylist []string) *Checker {
	return &Checker{Denylist: denylist}
}

// Check reports whether the hostname is safe to fetch. It never returns
// an error: anything that cannot be positively cleared is blocked, except
// DNS resolution failures, which pass through so the transport can surface
// them as a network fault with full context.
func (c *Checker) Check(ctx context.Context, hostname string) Result {
	host := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if host == "" {
		return Result{Blocked: true, Reason: "empty host"}
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return Result{Blocked: true, Reason: "loopback host"}
	}

	for _, deny := range c.Denylist {
		d := strings.ToLower(deny)
		if host == d || strings.HasSuffix(host, "."+d) {
			return Result{Blocked: true, Reason: "denylisted host"}
		}
	}

	// Literal IPs are checked directly, no lookup.
	if ip := net.ParseIP(host); ip != nil {
		if reason := forbiddenIP(ip); reason != "" {
			return Result{Blocked: true, Reason: reason}
		}
		return Result{}
	}

	addrs, err := c.lookup(ctx, host)
	if err != nil {
		// Unresolvable is not "unsafe"; the transport reports it.
		return Result{}
	}
	for _, addr := range addrs {
		if reason := forbiddenIP(addr.IP); reason != "" {
			return Result{Blocked: true, Reason: reason}
		}
	}
	return Result{}
}

func (c *Checker) lookup(ctx context.Context, host string) ([]net.IPAddr, error) {
	if c.Resolver != nil {
		return c.Resolver(ctx, host)
	}
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// forbiddenIP returns a non-empty reason when the address belongs to a
// range that must never be fetched.
func forbiddenIP(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address"
	case ip.IsUnspecified():
		return "unspecified address"
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return "link-local address"
	case ip.IsPrivate():
		return "private address"
	default:
		return ""
	}
}
