package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/formwatch/formwatch/internal/security/audit"
	"github.com/formwatch/formwatch/internal/security/auth"
	"github.com/formwatch/formwatch/internal/security/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func bearerFor(t *testing.T, tm *auth.TokenManager, clientID string) string {
	t.Helper()
	token, err := tm.GenerateToken(clientID, clientID+"@example.com", "pro", []string{"*"}, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func newTestLimiter(t *testing.T, maxReqs int) *ratelimit.Limiter {
	t.Helper()
	limiter := ratelimit.NewLimiter(maxReqs, time.Minute)
	t.Cleanup(limiter.Stop)
	return limiter
}

func TestRateLimitBudgetsAuthenticatedClient(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", "formwatch-test")
	limiter := newTestLimiter(t, 2)
	log := slog.Default()

	chain := JWTMiddleware(tm, log)(RateLimitMiddleware(limiter, log)(okHandler()))

	send := func(authHeader string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks", nil)
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		return rec.Code
	}

	first := bearerFor(t, tm, "client-1")
	for i := 0; i < 2; i++ {
		if code := send(first); code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, code)
		}
	}
	if code := send(first); code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: got %d, want 429", code)
	}

	// Budgets are per client, not shared
	if code := send(bearerFor(t, tm, "client-2")); code != http.StatusOK {
		t.Fatalf("second client: got %d, want 200", code)
	}
}

func TestRateLimitKeysAnonymousBySourceAddress(t *testing.T) {
	limiter := newTestLimiter(t, 1)
	handler := RateLimitMiddleware(limiter, slog.Default())(okHandler())

	send := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1:5555"); code != http.StatusOK {
		t.Fatalf("first anonymous request: got %d, want 200", code)
	}
	if code := send("10.0.0.1:6666"); code != http.StatusTooManyRequests {
		t.Fatalf("same address over budget: got %d, want 429", code)
	}
	if code := send("10.0.0.2:5555"); code != http.StatusOK {
		t.Fatalf("different address: got %d, want 200", code)
	}
}

func TestRateLimitExemptsProbeEndpoints(t *testing.T) {
	limiter := newTestLimiter(t, 1)
	handler := RateLimitMiddleware(limiter, slog.Default())(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("probe request %d: got %d, want 200", i+1, rec.Code)
		}
	}
}

func TestAuditRecordsAuthenticatedClient(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", "formwatch-test")
	var buf bytes.Buffer
	auditLog := audit.NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	chain := JWTMiddleware(tm, slog.Default())(AuditMiddleware(auditLog)(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks", nil)
	req.Header.Set("Authorization", bearerFor(t, tm, "client-7"))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if !strings.Contains(buf.String(), `"client_id":"client-7"`) {
		t.Fatalf("audit entry missing client id: %s", buf.String())
	}
}
