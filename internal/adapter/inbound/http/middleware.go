// Package http provides the HTTP transport adapter for the enforcement
// service: request-scoped logging, origin protection, admin API-key
// authentication, and client IP resolution for the enforcement endpoints.
package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vectorbound/boundaryplane/internal/ctxkey"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the
// logger. The request ID is stored in context using RequestIDKey; a logger
// enriched with request_id is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context, or
// slog.Default() if none was set.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// DNSRebindingProtection validates the Origin header against an allowlist,
// preventing DNS rebinding attacks against the enforcement endpoint. If
// allowedOrigins is empty, any request carrying an Origin header is
// blocked (local-only mode). Requests without an Origin header (same-origin
// or non-browser callers, e.g. the gRPC-semantic data plane) are allowed.
func DNSRebindingProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RealIPMiddleware extracts the client's real IP address and stores it in
// context under realIPContextKey{}, for retrieval via RealIPFromContext.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), realIPContextKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type realIPContextKey struct{}

// RealIPFromContext retrieves the client IP set by RealIPMiddleware.
func RealIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(realIPContextKey{}).(string)
	return ip
}

// extractRealIP extracts the client's real IP address from the request.
// The first address in X-Forwarded-For wins, then X-Real-IP, then the
// connection's remote address. Both headers are client-supplied.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
