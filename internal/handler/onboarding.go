package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/security"
	"github.com/formwatch/formwatch/internal/security/middleware"
	"github.com/formwatch/formwatch/internal/service"
	"github.com/formwatch/formwatch/internal/storage"
)

const maxUploadBytes = 16 << 20

// OnboardingHandler exposes company/employee onboarding and checklist
// item updates, including evidence file uploads.
type OnboardingHandler struct {
	onboarding *service.OnboardingService
	blobs      *storage.BlobStore
	authorizer *security.Authorizer
	logger     *slog.Logger
}

// NewOnboardingHandler creates a new onboarding handler
func NewOnboardingHandler(
	onboarding *service.OnboardingService,
	blobs *storage.BlobStore,
	authorizer *security.Authorizer,
	logger *slog.Logger,
) *OnboardingHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnboardingHandler{
		onboarding: onboarding,
		blobs:      blobs,
		authorizer: authorizer,
		logger:     logger,
	}
}

// OnboardCompany handles POST /api/onboarding/company
func (h *OnboardingHandler) OnboardCompany(w http.ResponseWriter, r *http.Request) {
	var profile domain.CompanyProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if profile.Name == "" || profile.Jurisdiction == "" {
		writeError(w, http.StatusBadRequest, "name and jurisdiction are required")
		return
	}

	result, err := h.onboarding.OnboardCompany(r.Context(), profile)
	if err != nil {
		h.logger.Error("company onboarding failed",
			slog.String("name", profile.Name),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// OnboardEmployee handles POST /api/onboarding/employee
func (h *OnboardingHandler) OnboardEmployee(w http.ResponseWriter, r *http.Request) {
	var profile domain.EmployeeProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if profile.CompanyID == "" || profile.Jurisdiction == "" {
		writeError(w, http.StatusBadRequest, "companyId and jurisdiction are required")
		return
	}

	result, err := h.onboarding.OnboardEmployee(r.Context(), profile)
	if err != nil {
		h.logger.Error("employee onboarding failed",
			slog.String("company_id", profile.CompanyID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// UpdateItemRequest represents a checklist item update
type UpdateItemRequest struct {
	Status string `json:"status"`
	FileID string `json:"fileId,omitempty"`
}

// UpdateItem handles PATCH /api/onboarding/checklist-items/{id}
func (h *OnboardingHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "item id is required")
		return
	}

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	checklist, err := h.onboarding.UpdateChecklistItem(r.Context(), itemID, domain.ItemStatus(req.Status), req.FileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checklist)
}

// UploadFile handles POST /api/checklist-items/{id}/file. The uploaded
// form is stored in blob storage and the item moves to submitted.
func (h *OnboardingHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "item id is required")
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if err := h.authorizer.RequireFeature(claims, security.FeatureFileUploads); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	fileID, err := h.blobs.Upload(r.Context(), data, header.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("evidence upload failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upload failed")
		return
	}

	checklist, err := h.onboarding.UpdateChecklistItem(r.Context(), itemID, domain.ItemSubmitted, fileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fileId":    fileID,
		"checklist": checklist,
	})
}
