package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// defaultPort is MariaDB/MySQL's standard TCP port (§6).
const defaultPort = 3306

// ParseAddress parses the §6 host syntax `[scheme://]host[:port]` into a
// dial address ("host:port") and whether a TLS upgrade should be attempted.
// Scheme "tls://" selects the upgrade; "tcp://" or no scheme selects none;
// any other scheme is rejected. A missing port defaults to 3306.
func ParseAddress(raw string) (address string, useTLS bool, err error) {
	if raw == "" {
		return "", false, fmt.Errorf("address must not be empty")
	}

	hostport := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme := raw[:idx]
		hostport = raw[idx+3:]
		switch scheme {
		case "tls":
			useTLS = true
		case "tcp", "":
			// no upgrade
		default:
			return "", false, fmt.Errorf("unsupported address scheme %q", scheme)
		}
	}
	if hostport == "" {
		return "", false, fmt.Errorf("address %q has no host", raw)
	}

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		// No port present at all (as opposed to a malformed one): apply
		// the default rather than failing.
		if strings.Contains(err.Error(), "missing port") {
			return net.JoinHostPort(hostport, strconv.Itoa(defaultPort)), useTLS, nil
		}
		return "", false, fmt.Errorf("parsing address %q: %w", raw, err)
	}
	if host == "" {
		return "", false, fmt.Errorf("address %q has no host", raw)
	}
	if portStr == "" {
		portStr = strconv.Itoa(defaultPort)
	}
	return net.JoinHostPort(host, portStr), useTLS, nil
}
