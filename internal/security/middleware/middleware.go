package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/formwatch/formwatch/internal/security/audit"
	"github.com/formwatch/formwatch/internal/security/auth"
	"github.com/formwatch/formwatch/internal/security/ratelimit"
)

type ClaimsContextKey struct{}
type ClientContextKey struct{}

// isPublic reports whether a request may proceed without a token.
// Document reads and health endpoints are open; mutations are not.
func isPublic(r *http.Request) bool {
	p := r.URL.Path
	if p == "/healthz" || p == "/readyz" || p == "/metrics" ||
		p == "/api/auth/register" || p == "/api/auth/login" {
		return true
	}
	if r.Method == http.MethodGet &&
		(p == "/api/documents" || strings.HasPrefix(p, "/api/documents/")) {
		return true
	}
	return false
}

func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			ctx = context.WithValue(ctx, ClientContextKey{}, claims.ClientID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware must be nested inside JWTMiddleware so
// authenticated requests are budgeted per client. Anonymous requests
// fall back to a per-source-address budget.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isUnmetered(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := GetClientFromContext(r.Context())
			if key == "" {
				key = remoteHost(r)
			}

			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isUnmetered exempts probe and scrape endpoints from the budget
func isUnmetered(r *http.Request) bool {
	p := r.URL.Path
	return p == "/healthz" || p == "/readyz" || p == "/metrics"
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if c := r.Context().Value(ClientContextKey{}); c != nil {
				clientID = c.(string)
			}

			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/refresh") {
				key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/documents/"), "/refresh")
				auditLog.LogRefresh(r.Context(), clientID, key, "initiated", "")
			}
			if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks" {
				auditLog.LogWebhookChange(r.Context(), clientID, "register", "", "initiated")
			}
			if r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/webhooks/") {
				auditLog.LogWebhookChange(r.Context(), clientID, "delete", r.PathValue("id"), "initiated")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func GetClientFromContext(ctx context.Context) string {
	if c := ctx.Value(ClientContextKey{}); c != nil {
		return c.(string)
	}
	return ""
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}
