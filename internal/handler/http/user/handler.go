package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/middleware"
	userService "chatcore-backend/internal/service/user"
	"chatcore-backend/pkg/response"
)

// Handler handles user directory HTTP requests
type Handler struct {
	userService *userService.Service
}

// NewHandler creates a new user handler
func NewHandler(userService *userService.Service) *Handler {
	return &Handler{
		userService: userService,
	}
}

// ListUsers lists every known user except the caller
// GET /v1/users
func (h *Handler) ListUsers(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	users, err := h.userService.ListOthers(c.Request.Context(), caller)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, users)
}

// GetMe returns the caller's record with its tagged friends
// GET /v1/users/me
func (h *Handler) GetMe(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	me, err := h.userService.Ensure(c.Request.Context(), caller)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, me)
}

// TagFriend adds a user to the caller's tagged friends
// POST /v1/users/me/tagged/:user_id
func (h *Handler) TagFriend(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	friendID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	me, err := h.userService.Tag(c.Request.Context(), caller, friendID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, me)
}

// UntagFriend removes a user from the caller's tagged friends
// DELETE /v1/users/me/tagged/:user_id
func (h *Handler) UntagFriend(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	friendID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	me, err := h.userService.Untag(c.Request.Context(), caller, friendID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, me)
}
