package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/security"
	"github.com/formwatch/formwatch/internal/security/audit"
	"github.com/formwatch/formwatch/internal/security/middleware"
	"github.com/formwatch/formwatch/internal/service"
)

// DocumentsHandler exposes tracked document reads and forced refreshes
type DocumentsHandler struct {
	documents  *service.DocumentService
	store      domain.DocumentRepository
	authorizer *security.Authorizer
	auditLog   *audit.Logger
	logger     *slog.Logger
}

// NewDocumentsHandler creates a new documents handler
func NewDocumentsHandler(
	documents *service.DocumentService,
	store domain.DocumentRepository,
	authorizer *security.Authorizer,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *DocumentsHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &DocumentsHandler{
		documents:  documents,
		store:      store,
		authorizer: authorizer,
		auditLog:   auditLog,
		logger:     logger,
	}
}

// MetadataResponse is the wire shape of document metadata
type MetadataResponse struct {
	FormID         string                  `json:"formId"`
	Jurisdiction   string                  `json:"jurisdiction"`
	Agency         string                  `json:"agency"`
	FormType       string                  `json:"formType"`
	Title          string                  `json:"title"`
	CurrentVersion string                  `json:"currentVersion"`
	DocumentHash   string                  `json:"documentHash"`
	LastUpdated    string                  `json:"lastUpdated"`
	LastChecked    string                  `json:"lastChecked"`
	EffectiveDate  string                  `json:"effectiveDate"`
	ExpirationDate *string                 `json:"expirationDate,omitempty"`
	IsActive       bool                    `json:"isActive"`
	FromArchive    bool                    `json:"fromArchive,omitempty"`
	Priority       int                     `json:"priority"`
	ChangeLog      []domain.ChangeLogEntry `json:"changeLog"`
}

func metadataResponse(m *domain.DocumentMetadata) MetadataResponse {
	resp := MetadataResponse{
		FormID:         m.Key.FormID,
		Jurisdiction:   m.Key.Jurisdiction,
		Agency:         m.Key.Agency,
		FormType:       string(m.FormType),
		Title:          m.Title,
		CurrentVersion: m.CurrentVersion,
		DocumentHash:   m.DocumentHash,
		LastUpdated:    m.LastUpdated.Format(time.RFC3339),
		LastChecked:    m.LastChecked.Format(time.RFC3339),
		EffectiveDate:  m.EffectiveDate.Format(time.RFC3339),
		IsActive:       m.IsActive,
		FromArchive:    m.FromArchive,
		Priority:       m.Priority,
		ChangeLog:      m.ChangeLog,
	}
	if m.ExpirationDate != nil {
		s := m.ExpirationDate.Format(time.RFC3339)
		resp.ExpirationDate = &s
	}
	if resp.ChangeLog == nil {
		resp.ChangeLog = []domain.ChangeLogEntry{}
	}
	return resp
}

// keyFromRequest builds the document key from the path and query params.
// Both jurisdiction and agency are required.
func keyFromRequest(r *http.Request) (domain.DocumentKey, bool) {
	key := domain.DocumentKey{
		FormID:       r.PathValue("formId"),
		Jurisdiction: r.URL.Query().Get("jurisdiction"),
		Agency:       r.URL.Query().Get("agency"),
	}
	if key.FormID == "" || key.Jurisdiction == "" || key.Agency == "" {
		return domain.DocumentKey{}, false
	}
	return key, true
}

// Get handles GET /api/documents/{formId}
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "formId, jurisdiction, and agency are required")
		return
	}

	meta, content, err := h.documents.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response := map[string]interface{}{
		"metadata": metadataResponse(meta),
	}
	if content != nil {
		response["content"] = map[string]interface{}{
			"contentType": content.ContentType,
			"body":        base64.StdEncoding.EncodeToString(content.Body),
			"fetchedAt":   content.FetchedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// Status handles GET /api/documents/{formId}/status
func (h *DocumentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "formId, jurisdiction, and agency are required")
		return
	}

	meta, _, err := h.documents.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metadata":    metadataResponse(meta),
		"needsUpdate": meta.NeedsUpdate(time.Now()),
	})
}

// List handles GET /api/documents
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		FormType:     domain.FormType(r.URL.Query().Get("formType")),
		Jurisdiction: r.URL.Query().Get("jurisdiction"),
	}
	if p := r.URL.Query().Get("minPriority"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "minPriority must be an integer")
			return
		}
		filter.MinPriority = n
	}

	docs, err := h.store.ListActive(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list documents", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	items := make([]MetadataResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, metadataResponse(d))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": items})
}

// Refresh handles POST /api/documents/{formId}/refresh
func (h *DocumentsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "formId, jurisdiction, and agency are required")
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if err := h.authorizer.RequireFeature(claims, security.FeatureManualRefresh); err != nil {
		h.auditLog.LogDenied(r.Context(), middleware.GetClientFromContext(r.Context()), "manual refresh not in tier")
		writeDomainError(w, err)
		return
	}
	if err := h.authorizer.RequireJurisdiction(claims, key.Jurisdiction); err != nil {
		h.auditLog.LogDenied(r.Context(), middleware.GetClientFromContext(r.Context()), "jurisdiction not granted: "+key.Jurisdiction)
		writeDomainError(w, err)
		return
	}

	outcome, meta, err := h.documents.Refresh(r.Context(), key)
	if err != nil {
		h.logger.Warn("forced refresh failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	h.auditLog.LogRefresh(r.Context(), middleware.GetClientFromContext(r.Context()), key.String(), "completed", string(outcome))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome":  string(outcome),
		"metadata": metadataResponse(meta),
	})
}
