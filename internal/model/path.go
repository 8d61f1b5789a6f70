package model

import (
	"fmt"
	"path"
	"regexp"
)

var pathRefPattern = regexp.MustCompile(`^(?P<host>[^/]+)?(?P<path>/.*)$`)

// PathRef is an endpoint-qualified absolute path: a bare
// absolute path means localhost, otherwise the string is "<host><path>".
type PathRef struct {
	Path string
	Host HostEndpoint
}

// ParsePathRef parses "[host]<absolute-path>".
func ParsePathRef(s string) (PathRef, error) {
	m := pathRefPattern.FindStringSubmatch(s)
	if m == nil {
		return PathRef{}, fmt.Errorf("%w: invalid path ref %q", ErrConfigInvalid, s)
	}
	names := pathRefPattern.SubexpNames()
	groups := make(map[string]string, len(names))
	for i, name := range names {
		if name != "" {
			groups[name] = m[i]
		}
	}

	hostStr := groups["host"]
	if hostStr == "" {
		hostStr = "localhost"
	}
	host, err := ParseHostEndpoint(hostStr)
	if err != nil {
		return PathRef{}, err
	}

	return PathRef{Path: groups["path"], Host: host}, nil
}

// Join returns a new PathRef rooted at the same host with path appended.
func (p PathRef) Join(elem ...string) PathRef {
	parts := append([]string{p.Path}, elem...)
	return PathRef{Path: path.Join(parts...), Host: p.Host}
}

func (p PathRef) String() string {
	if p.Host.Local {
		return p.Path
	}
	return p.Host.String() + p.Path
}
