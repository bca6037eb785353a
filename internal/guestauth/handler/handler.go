package handler

import (
	"context"
	"net/http"

	"marketplace_backend/internal/guestauth/service"
	"marketplace_backend/internal/guestauth/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request payload"
	msgValidationFailed = "validation failed"
)

// Handler exposes the guest verification endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new guest auth handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Begin starts a verification flow for a request.
func (h *Handler) Begin(c *gin.Context) {
	var req transport.BeginGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgInvalidRequest))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed))
		return
	}

	resp, err := h.svc.Begin(c.Request.Context(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// SubmitPhone records the phone number and sends a verification code.
func (h *Handler) SubmitPhone(c *gin.Context) {
	var req transport.SubmitPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgInvalidRequest))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed))
		return
	}

	resp, err := h.svc.SubmitPhone(c.Request.Context(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Resend sends a fresh code to the phone on the session.
func (h *Handler) Resend(c *gin.Context) {
	h.sessionAction(c, h.svc.Resend)
}

// Back returns from code entry to phone entry.
func (h *Handler) Back(c *gin.Context) {
	h.sessionAction(c, h.svc.Back)
}

// Cancel abandons the verification flow.
func (h *Handler) Cancel(c *gin.Context) {
	var req transport.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgInvalidRequest))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed))
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), req); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Verify checks the submitted code and issues an access token.
func (h *Handler) Verify(c *gin.Context) {
	var req transport.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgInvalidRequest))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed))
		return
	}

	resp, err := h.svc.Verify(c.Request.Context(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RetryQueued resubmits the caller's parked offer drafts.
func (h *Handler) RetryQueued(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	submitted, remaining, err := h.svc.RetryQueued(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitted": submitted, "remaining": remaining})
}

func (h *Handler) sessionAction(c *gin.Context, fn func(ctx context.Context, req transport.SessionRequest) (transport.StepResponse, error)) {
	var req transport.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgInvalidRequest))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed))
		return
	}

	resp, err := fn(c.Request.Context(), req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
