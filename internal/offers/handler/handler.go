// Package handler provides HTTP handlers for the offers module.
package handler

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"marketplace_backend/internal/offers/service"
	"marketplace_backend/internal/offers/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "Invalid request body"
	msgValidationFailed = "Validation failed"
	msgInvalidOfferID   = "Invalid offer ID"
)

// AttachmentUploader stores offer attachment files and returns their URLs.
// An upload failure aborts offer creation entirely.
type AttachmentUploader interface {
	UploadOfferAttachments(ctx context.Context, ownerID uuid.UUID, files []*multipart.FileHeader) ([]string, error)
}

// Handler handles offer HTTP requests.
type Handler struct {
	svc     *service.Service
	val     *validator.Validator
	uploads AttachmentUploader
}

// New creates a new offers handler.
func New(svc *service.Service, val *validator.Validator, uploads AttachmentUploader) *Handler {
	return &Handler{svc: svc, val: val, uploads: uploads}
}

// Create submits a new offer. Accepts plain JSON, or multipart form data with
// a "payload" JSON part and optional "attachments" files.
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateOfferRequest
	var files []*multipart.FileHeader

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := json.Unmarshal([]byte(c.PostForm("payload")), &req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
			return
		}
		files = form.File["attachments"]
	} else if err := c.ShouldBindJSON(&req); err != nil {
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

	var attachmentURLs []string
	if len(files) > 0 {
		if h.uploads == nil {
			httpkit.HandleError(c, apperr.Unavailable("attachments are not available"))
			return
		}
		urls, err := h.uploads.UploadOfferAttachments(c.Request.Context(), identity.UserID(), files)
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		attachmentURLs = urls
	}

	resp, err := h.svc.Create(c.Request.Context(), identity.UserID(), req, attachmentURLs)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// Get returns one offer visible to the caller.
func (h *Handler) Get(c *gin.Context) {
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidOfferID, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.Get(c.Request.Context(), offerID, identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

// ListMine returns the caller's submitted offers.
func (h *Handler) ListMine(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.ListMine(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

// StartNegotiation opens negotiation on a pending offer.
func (h *Handler) StartNegotiation(c *gin.Context) {
	h.transition(c, h.svc.StartNegotiation)
}

// Cancel withdraws a pending offer.
func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.svc.Cancel)
}

// Complete marks an accepted offer fulfilled.
func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, h.svc.Complete)
}

// Accept settles the request on this offer and rejects its siblings.
func (h *Handler) Accept(c *gin.Context) {
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidOfferID, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.Accept(c.Request.Context(), offerID, identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, uuid.UUID, uuid.UUID) (transport.OfferResponse, error)) {
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidOfferID, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := fn(c.Request.Context(), offerID, identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}
