package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// OriginPolicy decides which browser origins may open a connection.
// "*" allows any origin. Requests without an Origin header come from
// non-browser clients and are allowed.
type OriginPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
	log      *slog.Logger
}

func NewOriginPolicy(origins []string, log *slog.Logger) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}), log: log}
	for _, origin := range lo.Compact(lo.Map(origins, func(o string, _ int) string { return strings.TrimSpace(o) })) {
		if origin == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(origin)
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

func (p *OriginPolicy) Allow(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	p.log.Info("Blocked websocket connection from disallowed origin", "origin", header)
	return false
}

// Upgrader builds the gorilla upgrader checking origins with this policy.
func (p *OriginPolicy) Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     p.Allow,
	}
}
