package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a websocket.
// Requests without an Origin header come from non-browser clients and are accepted.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *slog.Logger
}

func NewOriginPolicy(origins []string, log *slog.Logger) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}), log: log}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// CheckOrigin is used as the upgrader's origin check.
// With no configured origin, only same-host browser requests are accepted.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		p.log.Warn("Blocked WebSocket connection with malformed origin", "origin", header)
		return false
	}
	if len(p.allowed) == 0 {
		u, _ := url.Parse(normalized)
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
	}
	if _, exists := p.allowed[normalized]; exists {
		return true
	}
	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", header)
	return false
}
