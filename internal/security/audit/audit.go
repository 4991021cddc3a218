package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger emits structured audit events for privileged operations
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates an audit logger on top of the root logger
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogAction records one audited action
func (al *Logger) LogAction(ctx context.Context, clientID, action, resource, resourceID, status, details string) {
	requestID := ""
	if reqID := ctx.Value("request_id"); reqID != nil {
		if s, ok := reqID.(string); ok {
			requestID = s
		}
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("client_id", clientID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

// LogRefresh records a forced document refresh
func (al *Logger) LogRefresh(ctx context.Context, clientID, documentKey, status, details string) {
	al.LogAction(ctx, clientID, "refresh", "document", documentKey, status, details)
}

// LogWebhookChange records webhook registration or deletion
func (al *Logger) LogWebhookChange(ctx context.Context, clientID, action, webhookID, status string) {
	al.LogAction(ctx, clientID, action, "webhook", webhookID, status, "")
}

// LogDenied records a rejected privileged request
func (al *Logger) LogDenied(ctx context.Context, clientID, reason string) {
	al.LogAction(ctx, clientID, "access_denied", "api", "", "denied", reason)
}
