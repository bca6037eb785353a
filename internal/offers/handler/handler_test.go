package handler

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newCreateRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/offers", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		h.Create(c)
	})
	return r
}

func multipartOffer(t *testing.T, withAttachment bool) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	payload := fmt.Sprintf(`{"requestId":%q,"priceCents":5000}`, uuid.New())
	if err := w.WriteField("payload", payload); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if withAttachment {
		part, err := w.CreateFormFile("attachments", "quote.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("pdf bytes")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestCreateWithAttachmentsRefusedWhenUploadsDisabled(t *testing.T) {
	h := New(nil, validator.New(), nil)
	r := newCreateRouter(h)

	body, contentType := multipartOffer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/offers", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
