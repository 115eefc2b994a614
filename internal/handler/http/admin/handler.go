package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/moderation"
	"chatcore-backend/pkg/audit"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/response"
)

// AuditReader lists stored audit events of one day
type AuditReader interface {
	Events(ctx context.Context, day time.Time, eventType audit.EventType, limit int) ([]*audit.Event, error)
}

// Handler handles admin HTTP requests. Routes are mounted behind
// middleware.RequireRole(jwt.RoleAdmin).
type Handler struct {
	gate   *moderation.Gate
	audit  *audit.Logger
	events AuditReader
}

// NewHandler creates a new admin handler. events may be nil when audit
// events are not stored in redis.
func NewHandler(gate *moderation.Gate, auditLogger *audit.Logger, events AuditReader) *Handler {
	return &Handler{
		gate:   gate,
		audit:  auditLogger,
		events: events,
	}
}

// BlocklistRequest replaces the active blocklist
type BlocklistRequest struct {
	Words []string `json:"words" binding:"required"`
}

// BlocklistResponse is the active blocklist
type BlocklistResponse struct {
	Words []string `json:"words"`
	Count int      `json:"count"`
}

// GetBlocklist returns the active blocklist
// GET /v1/admin/moderation/blocklist
func (h *Handler) GetBlocklist(c *gin.Context) {
	words := h.gate.Words()
	response.Success(c, http.StatusOK, BlocklistResponse{Words: words, Count: len(words)})
}

// UpdateBlocklist swaps the active blocklist. Sends already in flight keep
// the list they started with.
// PUT /v1/admin/moderation/blocklist
func (h *Handler) UpdateBlocklist(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req BlocklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	words := moderation.Normalize(req.Words)
	h.gate.Swap(words)
	h.audit.LogBlocklistUpdated(c.Request.Context(), caller.ID, "api")

	logger.FromContext(c.Request.Context()).Info("Blocklist updated",
		logger.UserID(caller.ID),
		zap.Int("entries", len(words)))

	active := h.gate.Words()
	response.Success(c, http.StatusOK, BlocklistResponse{Words: active, Count: len(active)})
}

// GetAuditEvents lists audit events of one day, newest first
// GET /v1/admin/audit?day=2006-01-02&type=moderation_blocked&limit=100
func (h *Handler) GetAuditEvents(c *gin.Context) {
	if h.events == nil {
		response.Error(c, http.StatusNotImplemented, "AUDIT_UNAVAILABLE", "Audit events are not stored")
		return
	}

	day := time.Now().UTC()
	if dayStr := c.Query("day"); dayStr != "" {
		parsed, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			response.ValidationError(c, "Invalid day, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	events, err := h.events.Events(c.Request.Context(), day, audit.EventType(c.Query("type")), limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to list audit events", zap.Error(err))
		response.InternalError(c, "Failed to list audit events")
		return
	}

	response.Success(c, http.StatusOK, events)
}
