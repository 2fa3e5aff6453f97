package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/njala-api/internal/domain"
)

type auditLister interface {
	List(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

// AuditHandler serves /api/audit.
type AuditHandler struct {
	svc auditLister
}

func NewAuditHandler(svc auditLister) *AuditHandler { return &AuditHandler{svc: svc} }

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, AuditLogsEnvelope{Data: logs})
}
