package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recipeproxy/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

type contextKey int

const requestInfoKey contextKey = iota

const maxRequestIDLength = 128

type requestInfo struct {
	id    string
	start time.Time
}

// RequestID returns the id assigned by the request context middleware.
func RequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey).(requestInfo); ok {
		return info.id
	}
	return ""
}

// RequestStart returns the time the request entered the router, or now when
// the request did not pass through the request context middleware.
func RequestStart(ctx context.Context) time.Time {
	if info, ok := ctx.Value(requestInfoKey).(requestInfo); ok {
		return info.start
	}
	return time.Now()
}

// requestContextMiddleware stamps each request with its start time and an id.
// A client supplied X-Request-ID is kept when it is short enough.
func requestContextMiddleware(clock clockwork.Clock) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			slog.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"request_id", id,
			)

			ctx := context.WithValue(r.Context(), requestInfoKey, requestInfo{id: id, start: clock.Now()})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// corsMiddleware handles Cross-Origin Resource Sharing
func corsMiddleware(corsConfig models.CORSConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case contains(corsConfig.AllowedOrigins, "*"):
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && contains(corsConfig.AllowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			if len(corsConfig.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsConfig.AllowedMethods, ", "))
			}
			if len(corsConfig.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsConfig.AllowedHeaders, ", "))
			}
			if corsConfig.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", corsConfig.MaxAge))
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered",
					"error", err,
					"path", r.URL.Path,
					"request_id", RequestID(r.Context()),
				)
				writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, r, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
}

func preflightHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
