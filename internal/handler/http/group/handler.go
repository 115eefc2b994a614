package group

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/membership"
	"chatcore-backend/pkg/response"
)

// Handler handles group HTTP requests
type Handler struct {
	membershipService *membership.Service
}

// NewHandler creates a new group handler
func NewHandler(membershipService *membership.Service) *Handler {
	return &Handler{membershipService: membershipService}
}

// CreateGroup creates a group owned by the caller
// POST /v1/groups
func (h *Handler) CreateGroup(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.GroupCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	group, err := h.membershipService.CreateGroup(c.Request.Context(), req.Name, req.Visibility, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, group.ToResponse())
}

// ListMyGroups lists the groups the caller belongs to
// GET /v1/groups
func (h *Handler) ListMyGroups(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	groups, err := h.membershipService.ListMyGroups(c.Request.Context(), caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toResponses(groups))
}

// ListPublicGroups lists every public group
// GET /v1/groups/public
func (h *Handler) ListPublicGroups(c *gin.Context) {
	groups, err := h.membershipService.ListPublicGroups(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toResponses(groups))
}

// GetGroup returns a group visible to the caller
// GET /v1/groups/:id
func (h *Handler) GetGroup(c *gin.Context) {
	caller, groupID, ok := h.params(c)
	if !ok {
		return
	}

	group, err := h.membershipService.GetGroup(c.Request.Context(), groupID, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, group.ToResponse())
}

// JoinGroup adds the caller to a public group
// POST /v1/groups/:id/join
func (h *Handler) JoinGroup(c *gin.Context) {
	caller, groupID, ok := h.params(c)
	if !ok {
		return
	}

	group, err := h.membershipService.JoinPublicGroup(c.Request.Context(), groupID, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, group.ToResponse())
}

// AddMember adds a user to the group (admins only)
// POST /v1/groups/:id/members
func (h *Handler) AddMember(c *gin.Context) {
	h.memberChange(c, h.membershipService.AddMember)
}

// RemoveMember removes a user from the group (admins only)
// DELETE /v1/groups/:id/members/:user_id
func (h *Handler) RemoveMember(c *gin.Context) {
	h.targetChange(c, h.membershipService.RemoveMember)
}

// PromoteAdmin grants admin to a member (admins only)
// POST /v1/groups/:id/admins
func (h *Handler) PromoteAdmin(c *gin.Context) {
	h.memberChange(c, h.membershipService.Promote)
}

// DemoteAdmin revokes admin from a user (admins only)
// DELETE /v1/groups/:id/admins/:user_id
func (h *Handler) DemoteAdmin(c *gin.Context) {
	h.targetChange(c, h.membershipService.Demote)
}

type mutation func(ctx context.Context, groupID, target, caller uuid.UUID) (*domain.Group, error)

// memberChange reads the target from the JSON body
func (h *Handler) memberChange(c *gin.Context, apply mutation) {
	caller, groupID, ok := h.params(c)
	if !ok {
		return
	}

	var req domain.MemberChange
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	h.apply(c, apply, groupID, req.UserID, caller.ID)
}

// targetChange reads the target from the :user_id path parameter
func (h *Handler) targetChange(c *gin.Context, apply mutation) {
	caller, groupID, ok := h.params(c)
	if !ok {
		return
	}

	target, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	h.apply(c, apply, groupID, target, caller.ID)
}

func (h *Handler) apply(c *gin.Context, apply mutation, groupID, target, caller uuid.UUID) {
	group, err := apply(c.Request.Context(), groupID, target, caller)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, group.ToResponse())
}

func (h *Handler) params(c *gin.Context) (domain.Identity, uuid.UUID, bool) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return domain.Identity{}, uuid.Nil, false
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid group ID")
		return domain.Identity{}, uuid.Nil, false
	}
	return caller, groupID, true
}

func toResponses(groups []*domain.Group) []*domain.GroupResponse {
	out := make([]*domain.GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ToResponse())
	}
	return out
}
