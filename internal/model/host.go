package model

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

var hostEndpointPattern = regexp.MustCompile(
	`^(?:(?P<username>[^:@]+)(?::(?P<password>[^@]+))?@)?(?P<hostname>[^:/]+)(?::(?P<port>\d+))?$`,
)

// HostEndpoint is a local-or-remote execution target: host, an
// optional user/password/port, and whether it resolves to the local machine.
// Allowed string forms: hostname, hostname:port, user@hostname,
// user@hostname:port, user:password@hostname[:port].
type HostEndpoint struct {
	Host     string
	User     string
	Password string
	Port     int
	Local    bool
}

// ParseHostEndpoint parses one of the forms documented above. An empty or
// "localhost" host is local; so is a host matching the machine's own hostname.
func ParseHostEndpoint(s string) (HostEndpoint, error) {
	if s == "" {
		s = "localhost"
	}
	m := hostEndpointPattern.FindStringSubmatch(s)
	if m == nil {
		return HostEndpoint{}, fmt.Errorf("%w: invalid host endpoint %q", ErrConfigInvalid, s)
	}
	names := hostEndpointPattern.SubexpNames()
	groups := make(map[string]string, len(names))
	for i, name := range names {
		if name != "" {
			groups[name] = m[i]
		}
	}

	ep := HostEndpoint{
		Host:     groups["hostname"],
		User:     groups["username"],
		Password: groups["password"],
	}
	if p := groups["port"]; p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return HostEndpoint{}, fmt.Errorf("%w: invalid port in %q", ErrConfigInvalid, s)
		}
		ep.Port = port
	}
	ep.Local = isLocalHost(ep.Host)
	return ep, nil
}

func isLocalHost(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	if hn, err := os.Hostname(); err == nil && hn == host {
		return true
	}
	return false
}

func (h HostEndpoint) String() string {
	return h.Host
}
