package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/tokengate/middleware"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/services"
	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

// AuditReader reads recorded audit events
type AuditReader interface {
	Recent(ctx context.Context, username string, limit int) ([]*models.AuditLog, error)
}

// AuditLogResponse represents an audit event in API responses
type AuditLogResponse struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Username   string          `json:"username,omitempty"`
	ActorID    string          `json:"actorId,omitempty"`
	ResourceID string          `json:"resourceId,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

// AuditHandler exposes the audit trail to administrators
type AuditHandler struct {
	reader AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(reader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		reader: reader,
		logger: logger,
	}
}

// HandleListAudit handles GET /get-audit-log and the admin audit listing.
// Optional query parameters: username, limit.
func (h *AuditHandler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", map[string]interface{}{
				"limit": raw,
			})
			return
		}
		limit = n
	}

	logs, err := h.reader.Recent(r.Context(), query.Get("username"), limit)
	if err != nil {
		middleware.WriteServiceError(w, services.WrapInternal("failed to read audit log", err), h.logger)
		return
	}

	responses := make([]AuditLogResponse, len(logs))
	for i, l := range logs {
		responses[i] = auditLogToResponse(l)
	}

	_ = utils.WriteList(w, responses)
}

func auditLogToResponse(l *models.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ID:        l.ID.String(),
		Action:    string(l.Action),
		Username:  l.Username,
		Details:   l.Details,
		RequestID: l.RequestID,
		Timestamp: l.Timestamp.UTC().Format(time.RFC3339),
	}
	if l.ActorID != nil {
		resp.ActorID = l.ActorID.String()
	}
	if l.ResourceID != nil {
		resp.ResourceID = l.ResourceID.String()
	}
	return resp
}
