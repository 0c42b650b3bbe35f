package util

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// lookupTimeout bounds one resolver query.
const lookupTimeout = 5 * time.Second

// ResolveIPv4 returns the first IPv4 address of host.  A literal IPv4
// address comes back as is; IPv6 literals are rejected because the DoH
// tools on the testbed take dotted quads only.
func ResolveIPv4(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
		return "", fmt.Errorf("%s is not an IPv4 address", host)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no IPv4 address for %s", host)
	}
	return ips[0].String(), nil
}

// FormatAddr joins host and port, bracketing IPv6 hosts.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
