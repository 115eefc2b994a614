package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/chat"
	"chatcore-backend/internal/visibility"
	"chatcore-backend/pkg/response"
)

const kindKey = "conversation_kind"

// Handler handles message HTTP requests of both conversation kinds
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// Kind tags the route group with the conversation kind its :id refers to
func Kind(kind domain.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(kindKey, kind)
		c.Next()
	}
}

// UploadRequest asks for a presigned attachment upload
type UploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	Size     int64  `json:"size" binding:"required,gt=0"`
}

// CompleteUploadRequest appends a presigned upload as a message
type CompleteUploadRequest struct {
	ObjectKey string `json:"object_key" binding:"required"`
	Filename  string `json:"filename"`
}

// SendMessage sends a text message
// POST /v1/conversations/:id/messages
// POST /v1/groups/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	caller, ref, ok := params(c)
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.chatService.SendText(c.Request.Context(), &chat.SendTextInput{
		Conversation: ref,
		Sender:       caller,
		Text:         req.Text,
		ViewOnce:     req.ViewOnce,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, visibility.RenderText(msg, caller.ID))
}

// SendAttachment uploads a multipart "file" field and sends it
// POST /v1/conversations/:id/attachments
// POST /v1/groups/:id/attachments
func (h *Handler) SendAttachment(c *gin.Context) {
	caller, ref, ok := params(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.ValidationError(c, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		response.ValidationError(c, "file could not be read")
		return
	}
	defer file.Close()

	msg, err := h.chatService.SendAttachment(c.Request.Context(), &chat.SendAttachmentInput{
		Conversation: ref,
		Sender:       caller,
		Filename:     header.Filename,
		Reader:       file,
		Size:         header.Size,
		ContentType:  header.Header.Get("Content-Type"),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, visibility.RenderText(msg, caller.ID))
}

// RequestUpload presigns an upload the client sends straight to the blob store
// POST /v1/conversations/:id/attachments/presign
// POST /v1/groups/:id/attachments/presign
func (h *Handler) RequestUpload(c *gin.Context) {
	caller, ref, ok := params(c)
	if !ok {
		return
	}

	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	ticket, err := h.chatService.RequestUpload(c.Request.Context(), ref, caller.ID, req.Filename, req.Size)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ticket)
}

// CompleteUpload sends a presigned upload once it has landed
// POST /v1/conversations/:id/attachments/complete
// POST /v1/groups/:id/attachments/complete
func (h *Handler) CompleteUpload(c *gin.Context) {
	caller, ref, ok := params(c)
	if !ok {
		return
	}

	var req CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.chatService.CompleteUpload(c.Request.Context(), ref, caller, req.ObjectKey, req.Filename)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, visibility.RenderText(msg, caller.ID))
}

// GetMessages renders the conversation for the caller. View-once messages
// shown here are consumed unless mark=false.
// GET /v1/conversations/:id/messages?mark=false&marker=...
// GET /v1/groups/:id/messages
func (h *Handler) GetMessages(c *gin.Context) {
	caller, ref, ok := params(c)
	if !ok {
		return
	}

	mark := true
	if markStr := c.Query("mark"); markStr != "" {
		parsed, err := strconv.ParseBool(markStr)
		if err != nil {
			response.ValidationError(c, "Invalid mark flag")
			return
		}
		mark = parsed
	}

	opts := visibility.DefaultOptions()
	if marker, ok := c.GetQuery("marker"); ok {
		opts.Marker = marker
	}

	messages, err := h.chatService.History(c.Request.Context(), ref, caller.ID, mark, opts)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"conversation_id": ref.ID,
		"kind":            ref.Kind,
		"messages":        messages,
	})
}

// MarkViewed consumes one view-once message
// POST /v1/conversations/:id/messages/:message_id/viewed
// POST /v1/groups/:id/messages/:message_id/viewed
func (h *Handler) MarkViewed(c *gin.Context) {
	caller, ref, ok := params(c)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	added, err := h.chatService.MarkViewed(c.Request.Context(), ref, messageID, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message_id": messageID,
		"marked":     added,
	})
}

// params reads the caller and the conversation addressed by the route
func params(c *gin.Context) (domain.Identity, domain.ConversationRef, bool) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return domain.Identity{}, domain.ConversationRef{}, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return domain.Identity{}, domain.ConversationRef{}, false
	}

	kind := domain.KindDirect
	if v, ok := c.Get(kindKey); ok {
		kind = v.(domain.ConversationKind)
	}
	return caller, domain.ConversationRef{ID: id, Kind: kind}, true
}
