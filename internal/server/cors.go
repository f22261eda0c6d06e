package server

import (
	"net/http"
	"slices"
	"strings"
)

const (
	corsAllowedMethods = "GET, POST, OPTIONS"
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-ID"
)

// originPolicy decides which browser origins may call the server.
type originPolicy struct {
	any     bool
	allowed []string
}

func newOriginPolicy(origins []string) originPolicy {
	return originPolicy{any: slices.Contains(origins, "*"), allowed: origins}
}

func (p originPolicy) allows(origin string) bool {
	return origin != "" && (p.any || slices.Contains(p.allowed, origin))
}

// patterns returns the host patterns accepted by websocket.AcceptOptions.
func (p originPolicy) patterns() []string {
	if p.any {
		return []string{"*"}
	}
	out := make([]string, 0, len(p.allowed))
	for _, o := range p.allowed {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}

// cors answers preflight requests and attaches CORS headers for allowed
// origins. The request origin is echoed so credentials work with "*".
func cors(p originPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !p.allows(origin) {
				http.Error(w, "cors preflight not allowed", http.StatusForbidden)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if p.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}
