package session

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// OriginFilter decides which IndexedDB origin directories are worth
// carrying into a slot. It is an allow-list: an empty filter matches
// nothing, so auxiliary storage stays small unless origins are opted in.
type OriginFilter struct {
	patterns []glob.Glob
}

// NewOriginFilter compiles host patterns such as "*google.com" into a
// filter.
func NewOriginFilter(patterns []string) (*OriginFilter, error) {
	f := &OriginFilter{}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid origin pattern '%s': %w", pattern, err)
		}
		f.patterns = append(f.patterns, g)
	}

	return f, nil
}

// Matches reports whether an IndexedDB directory name belongs to an
// allowed origin. Directory names encode the origin as scheme_host_port,
// e.g. "https_www.google.com_0.indexeddb.leveldb"; patterns are matched
// against the extracted host and against the raw name.
func (f *OriginFilter) Matches(dirName string) bool {
	if len(f.patterns) == 0 {
		return false
	}

	host := originHost(dirName)
	for _, pattern := range f.patterns {
		if host != "" && pattern.Match(host) {
			return true
		}
		if pattern.Match(dirName) {
			return true
		}
	}
	return false
}

// originHost extracts the host from a serialized origin directory name.
// Returns "" when the name does not follow the scheme_host_port shape.
func originHost(dirName string) string {
	base := dirName
	if i := strings.Index(base, ".indexeddb"); i >= 0 {
		base = base[:i]
	}

	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return ""
	}
	// Hostname is everything between the scheme and the trailing port.
	return strings.Join(parts[1:len(parts)-1], "_")
}
