package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var errPrivateAddress = errors.New("fetch to private IP addresses is not allowed")

// blockedPrefixes are loopback, private, link-local, shared and
// documentation ranges that user code may not reach.
var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8", "10.0.0.0/8", "100.64.0.0/10", "127.0.0.0/8",
	"169.254.0.0/16", "172.16.0.0/12", "192.0.0.0/24", "192.0.2.0/24",
	"192.168.0.0/16", "198.18.0.0/15", "198.51.100.0/24", "203.0.113.0/24",
	"240.0.0.0/4",
	"::/128", "::1/128", "fc00::/7", "fe80::/10",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// PrivateAddr reports whether addr falls in a blocked range. IPv4-mapped
// IPv6 addresses are checked as IPv4.
func PrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// PrivateURL is the pre-flight check run before a fetch leaves the unit. It
// does not resolve names; guardedDial repeats the check on the resolved
// addresses at connect time. Unparseable URLs count as private.
func PrivateURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "":
		return true
	case host == "localhost", strings.HasSuffix(host, ".localhost"):
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return PrivateAddr(addr)
	}
	return false
}

// guardedDial resolves addr and connects to the first public address.
func guardedDial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("fetch: bad address %q: %w", addr, err)
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("fetch: resolving %s: %w", host, err)
	}
	var d net.Dialer
	for _, a := range addrs {
		if !PrivateAddr(a) {
			return d.DialContext(ctx, network, net.JoinHostPort(a.Unmap().String(), port))
		}
	}
	return nil, errPrivateAddress
}
