package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"
)

// KeyFunc extracts the client identifier from a request.
type KeyFunc func(r *http.Request) string

// DeniedFunc writes the response for a rejected request.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, d Decision)

// Middleware returns HTTP middleware that admits requests through limiter.
// Rate limit headers are set on every response; denied requests are answered
// by denied, or by a plain JSON 429 when denied is nil.
func Middleware(limiter Limiter, keyFunc KeyFunc, denied DeniedFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP(false)
	}
	if denied == nil {
		denied = writeDenied
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			d := limiter.Admit(r.Context(), key)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))

			if !d.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", RetryAfterSeconds(d)))
				slog.Warn("Rate limit exceeded",
					"client", key,
					"limit", d.Limit,
					"retry_after", RetryAfterSeconds(d),
				)
				denied(w, r, d)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RetryAfterSeconds rounds the decision's retry delay up to whole seconds.
func RetryAfterSeconds(d Decision) int {
	return int(math.Ceil(float64(d.RetryAfter) / float64(time.Second)))
}

func writeDenied(w http.ResponseWriter, _ *http.Request, d Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":      "Too many requests",
		"retryAfter": RetryAfterSeconds(d),
	})
}

// ClientIP keys requests by client address. Forwarding headers are only
// consulted when trustForwarded is set, i.e. when the proxy runs behind a
// load balancer that overwrites them.
func ClientIP(trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		if trustForwarded {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ips := strings.Split(xff, ",")
				if ip := strings.TrimSpace(ips[0]); ip != "" {
					return ip
				}
			}
			if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
				return xri
			}
		}
		return remoteHost(r.RemoteAddr)
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
