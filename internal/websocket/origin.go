package websocket

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a connection. An empty
// allow-list or "*" allows every origin.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewOriginPolicy normalizes the configured origins. Invalid entries are
// returned so the caller can log them.
func NewOriginPolicy(origins []string) (*OriginPolicy, []string) {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	var invalid []string

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			invalid = append(invalid, origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	if len(p.allowed) == 0 && len(invalid) == 0 {
		p.allowAll = true
	}
	return p, invalid
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Allowed checks the request's Origin header. Requests without one come from
// non-browser clients and are only accepted when every origin is allowed.
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	if p.allowAll {
		return true
	}
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, exists := p.allowed[normalized]
	return exists
}
