package video

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/signaling"
	"chatcore-backend/pkg/response"
)

// Handler handles call signaling HTTP requests
type Handler struct {
	signalingService *signaling.Service
}

// NewHandler creates a new video handler
func NewHandler(signalingService *signaling.Service) *Handler {
	return &Handler{
		signalingService: signalingService,
	}
}

// StartCall starts a session with the caller as offerer
// POST /v1/calls
func (h *Handler) StartCall(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	session, err := h.signalingService.Start(c.Request.Context(), req.SessionID, caller.ID, req.PeerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// GetCall gets a session the caller takes part in
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	caller, sessionID, ok := params(c)
	if !ok {
		return
	}

	session, err := h.signalingService.Get(c.Request.Context(), sessionID, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// PublishSignal stores the caller's offer or answer
// PUT /v1/calls/:id/signal
func (h *Handler) PublishSignal(c *gin.Context) {
	caller, sessionID, ok := params(c)
	if !ok {
		return
	}

	var req domain.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	role, err := h.signalingService.Publish(c.Request.Context(), sessionID, caller.ID, req.Signal)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session_id": sessionID,
		"role":       role,
	})
}

// ReadSignal returns the other participant's blob
// GET /v1/calls/:id/signal
func (h *Handler) ReadSignal(c *gin.Context) {
	caller, sessionID, ok := params(c)
	if !ok {
		return
	}

	signal, err := h.signalingService.Read(c.Request.Context(), sessionID, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, signal)
}

// EndCall discards the session
// DELETE /v1/calls/:id
func (h *Handler) EndCall(c *gin.Context) {
	caller, sessionID, ok := params(c)
	if !ok {
		return
	}

	if err := h.signalingService.End(c.Request.Context(), sessionID, caller.ID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Call ended",
	})
}

func params(c *gin.Context) (domain.Identity, uuid.UUID, bool) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return domain.Identity{}, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid session ID")
		return domain.Identity{}, uuid.Nil, false
	}
	return caller, sessionID, true
}
