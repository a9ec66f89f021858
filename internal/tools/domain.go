// internal/tools/domain.go
package tools

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

// Browser internal pages are always reachable.
var internalPages = map[string]bool{
	"about:blank":            true,
	"chrome://new-tab-page/": true,
	"chrome://newtab/":       true,
}

// IsURLAllowed reports whether rawURL's host matches one of the allowed
// domain patterns. An empty list allows everything. Patterns may be exact
// hosts, "*.example.com" (the apex and any subdomain) or other globs.
func IsURLAllowed(rawURL string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if internalPages[rawURL] {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return false
	}

	for _, pattern := range allowed {
		if matchesDomain(host, pattern) {
			return true
		}
	}
	return false
}

func matchesDomain(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if i := strings.Index(pattern, "://"); i >= 0 {
		pattern = pattern[i+3:]
	}
	if pattern == "" {
		return false
	}

	variants := []string{host}
	if strings.HasPrefix(host, "www.") {
		variants = append(variants, strings.TrimPrefix(host, "www."))
	} else {
		variants = append(variants, "www."+host)
	}

	switch {
	case strings.HasPrefix(pattern, "*."):
		apex := normalizeHost(pattern[2:])
		for _, h := range variants {
			if h == apex || strings.HasSuffix(h, "."+apex) {
				return true
			}
		}
	case strings.Contains(pattern, "*"):
		for _, h := range variants {
			if ok, err := path.Match(pattern, h); err == nil && ok {
				return true
			}
		}
	default:
		pattern = normalizeHost(pattern)
		for _, h := range variants {
			if h == pattern {
				return true
			}
		}
	}
	return false
}

// normalizeHost lowercases and converts internationalized names to their
// ASCII form so "bücher.example" and "xn--bcher-kva.example" compare equal.
func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSuffix(h, "."))
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		return ascii
	}
	return h
}
