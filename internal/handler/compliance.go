package handler

import (
	"log/slog"
	"net/http"

	"github.com/formwatch/formwatch/internal/service"
)

// ComplianceHandler exposes compliance evaluation for onboarded owners
type ComplianceHandler struct {
	compliance *service.ComplianceService
	logger     *slog.Logger
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(compliance *service.ComplianceService, logger *slog.Logger) *ComplianceHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &ComplianceHandler{
		compliance: compliance,
		logger:     logger,
	}
}

// Company handles GET /api/compliance/company/{id}
func (h *ComplianceHandler) Company(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "company id is required")
		return
	}

	view, err := h.compliance.ForCompany(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Employee handles GET /api/compliance/employee/{id}
func (h *ComplianceHandler) Employee(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "employee id is required")
		return
	}

	view, err := h.compliance.ForEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
