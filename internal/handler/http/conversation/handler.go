package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/directory"
	"chatcore-backend/pkg/response"
)

// Handler handles direct conversation HTTP requests
type Handler struct {
	directoryService *directory.Service
}

// NewHandler creates a new conversation handler
func NewHandler(directoryService *directory.Service) *Handler {
	return &Handler{
		directoryService: directoryService,
	}
}

// ResolveDirectRequest names the other participant
type ResolveDirectRequest struct {
	PeerID uuid.UUID `json:"peer_id" binding:"required"`
}

// ResolveDirect returns the conversation between the caller and a peer,
// creating it on first use
// POST /v1/conversations/direct
func (h *Handler) ResolveDirect(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req ResolveDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conv, err := h.directoryService.ResolveDirect(c.Request.Context(), caller.ID, req.PeerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv.ToResponse())
}

// ResolveDirectWith is ResolveDirect with the peer in the path, so a share
// link to a user can be opened directly
// GET /v1/conversations/direct/:peer
func (h *Handler) ResolveDirectWith(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	peerID, err := uuid.Parse(c.Param("peer"))
	if err != nil {
		response.ValidationError(c, "Invalid peer ID")
		return
	}

	conv, err := h.directoryService.ResolveDirect(c.Request.Context(), caller.ID, peerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv.ToResponse())
}

// ListConversations lists the caller's direct conversations
// GET /v1/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	convs, err := h.directoryService.ListMine(c.Request.Context(), caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	out := make([]*domain.DirectConversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conv.ToResponse())
	}
	response.Success(c, http.StatusOK, out)
}

// GetConversation gets a direct conversation the caller takes part in
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	conv, err := h.directoryService.GetDirect(c.Request.Context(), conversationID, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv.ToResponse())
}
