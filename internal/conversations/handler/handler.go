// Package handler provides HTTP handlers for the conversations module.
package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"marketplace_backend/internal/conversations/service"
	"marketplace_backend/internal/conversations/transport"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest        = "Invalid request body"
	msgValidationFailed      = "Validation failed"
	msgInvalidConversationID = "Invalid conversation ID"
)

// Handler handles conversation HTTP requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new conversations handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Open brings the caller's chat session for an offer to ready.
func (h *Handler) Open(c *gin.Context) {
	var req transport.OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.Open(c.Request.Context(), identity.UserID(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

// List returns the caller's conversations with inbox metadata.
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.List(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

// History returns a conversation's messages.
func (h *Handler) History(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.History(c.Request.Context(), identity.UserID(), conversationID, limit)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

// Send persists a message. Text messages arrive as JSON; voice messages as
// multipart form data with a "voice" file and an optional "body" field.
func (h *Handler) Send(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}

	var body string
	var voice *multipart.FileHeader

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("voice")
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "voice file is required")
			return
		}
		voice = fh
		body = c.PostForm("body")
	} else {
		var req transport.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
		body = req.Body
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.Send(c.Request.Context(), identity.UserID(), conversationID, body, voice)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// MarkRead marks the counterpart's messages read.
func (h *Handler) MarkRead(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), identity.UserID(), conversationID); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Close closes a conversation for both participants.
func (h *Handler) Close(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.Close(c.Request.Context(), identity.UserID(), conversationID); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave tears down the caller's session without closing the conversation.
func (h *Handler) Leave(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.Leave(c.Request.Context(), identity.UserID(), conversationID); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VoiceURL returns a presigned download URL for a voice message file.
func (h *Handler) VoiceURL(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	fileKey := c.Query("key")
	if fileKey == "" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "key query parameter is required")
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.VoiceURL(c.Request.Context(), identity.UserID(), conversationID, fileKey)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidConversationID, err.Error())
		return uuid.Nil, false
	}
	return id, true
}
