package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/security"
	"github.com/formwatch/formwatch/internal/security/audit"
	"github.com/formwatch/formwatch/internal/security/middleware"
	"github.com/formwatch/formwatch/internal/worker"
)

// SweepsHandler triggers an out-of-schedule sweep of one job class
type SweepsHandler struct {
	sweeps     *worker.SweepWorker
	authorizer *security.Authorizer
	auditLog   *audit.Logger
	logger     *slog.Logger
}

// NewSweepsHandler creates a new sweeps handler
func NewSweepsHandler(
	sweeps *worker.SweepWorker,
	authorizer *security.Authorizer,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *SweepsHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SweepsHandler{
		sweeps:     sweeps,
		authorizer: authorizer,
		auditLog:   auditLog,
		logger:     logger,
	}
}

func validJobClass(c domain.JobClass) bool {
	switch c {
	case domain.SweepDaily, domain.SweepMonthly, domain.SweepQuarterly, domain.SweepAnnual:
		return true
	}
	return false
}

// Run handles POST /api/sweeps/{class}. The sweep runs in the background;
// a sweep of the same class already in flight makes this a no-op.
func (h *SweepsHandler) Run(w http.ResponseWriter, r *http.Request) {
	class := domain.JobClass(r.PathValue("class"))
	if !validJobClass(class) {
		writeError(w, http.StatusBadRequest, "unknown sweep class: "+string(class))
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	clientID := middleware.GetClientFromContext(r.Context())
	if err := h.authorizer.RequireFeature(claims, security.FeatureManualRefresh); err != nil {
		h.auditLog.LogDenied(r.Context(), clientID, "sweep trigger not in tier")
		writeDomainError(w, err)
		return
	}

	h.auditLog.LogAction(r.Context(), clientID, "sweep", "job_class", string(class), "triggered", "")
	go h.sweeps.RunSweep(context.Background(), class)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"class":  string(class),
		"status": "triggered",
	})
}
