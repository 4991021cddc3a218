package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/security"
	"github.com/formwatch/formwatch/internal/security/audit"
	"github.com/formwatch/formwatch/internal/security/middleware"
)

// WebhooksHandler manages webhook subscriptions for the calling client
type WebhooksHandler struct {
	webhooks   domain.WebhookRepository
	authorizer *security.Authorizer
	ownership  *security.OwnershipGuard
	auditLog   *audit.Logger
	logger     *slog.Logger
}

// NewWebhooksHandler creates a new webhooks handler
func NewWebhooksHandler(
	webhooks domain.WebhookRepository,
	authorizer *security.Authorizer,
	ownership *security.OwnershipGuard,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *WebhooksHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhooksHandler{
		webhooks:   webhooks,
		authorizer: authorizer,
		ownership:  ownership,
		auditLog:   auditLog,
		logger:     logger,
	}
}

// CreateWebhookRequest represents a subscription request
type CreateWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

func knownEvent(e string) bool {
	switch e {
	case "*",
		domain.EventDocumentChanged,
		domain.EventDocumentNew,
		domain.EventSweepCompleted,
		domain.EventComplianceChanged:
		return true
	}
	return false
}

// Create handles POST /api/webhooks
func (h *WebhooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	clientID := middleware.GetClientFromContext(r.Context())

	if err := h.authorizer.RequireFeature(claims, security.FeatureWebhooks); err != nil {
		h.auditLog.LogDenied(r.Context(), clientID, "webhooks not in tier")
		writeDomainError(w, err)
		return
	}

	var req CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be a valid http(s) endpoint")
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, "secret is required for signed delivery")
		return
	}
	if len(req.Events) == 0 {
		req.Events = []string{"*"}
	}
	for _, e := range req.Events {
		if !knownEvent(e) {
			writeError(w, http.StatusBadRequest, "unknown event: "+e)
			return
		}
	}

	sub := &domain.WebhookSubscription{
		ID:       uuid.New().String(),
		ClientID: clientID,
		URL:      req.URL,
		Events:   req.Events,
		Secret:   req.Secret,
	}

	if err := h.webhooks.Create(r.Context(), sub); err != nil {
		h.logger.Error("failed to create webhook", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	h.auditLog.LogWebhookChange(r.Context(), clientID, "register", sub.ID, "created")
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /api/webhooks
func (h *WebhooksHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.GetClientFromContext(r.Context())

	subs, err := h.webhooks.ListByClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("failed to list webhooks", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	if subs == nil {
		subs = []*domain.WebhookSubscription{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": subs})
}

// Delete handles DELETE /api/webhooks/{id}
func (h *WebhooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	clientID := middleware.GetClientFromContext(r.Context())

	sub, err := h.webhooks.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.ownership.Require(clientID, security.OwnershipCheck{
		ResourceType: security.ResourceWebhook,
		ResourceID:   sub.ID,
		OwnerID:      sub.ClientID,
	}); err != nil {
		h.auditLog.LogDenied(r.Context(), clientID, "webhook owned by another client")
		writeDomainError(w, err)
		return
	}

	if err := h.webhooks.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditLog.LogWebhookChange(r.Context(), clientID, "delete", id, "deleted")
	w.WriteHeader(http.StatusNoContent)
}
