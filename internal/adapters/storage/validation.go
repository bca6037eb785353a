package storage

import (
	"strings"

	"marketplace_backend/platform/apperr"
)

// allowedVoiceContentTypes are the audio formats accepted for voice messages.
var allowedVoiceContentTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp4":   true,
	"audio/aac":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/ogg":   true,
	"audio/webm":  true,
}

// allowedAttachmentContentTypes are the formats accepted for offer attachments.
var allowedAttachmentContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

func normalizeContentType(contentType string) string {
	normalized := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(normalized))
}

// ValidateVoiceContentType checks the MIME type of a voice message upload.
func (s *MinIOService) ValidateVoiceContentType(contentType string) error {
	if !allowedVoiceContentTypes[normalizeContentType(contentType)] {
		return apperr.Validation("unsupported voice message format: " + contentType)
	}
	return nil
}

// ValidateAttachmentContentType checks the MIME type of an offer attachment.
func (s *MinIOService) ValidateAttachmentContentType(contentType string) error {
	if !allowedAttachmentContentTypes[normalizeContentType(contentType)] {
		return apperr.Validation("unsupported attachment format: " + contentType)
	}
	return nil
}

// ValidateFileSize checks that a file is non-empty and within limits.
func (s *MinIOService) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return apperr.Validation("file is empty")
	}
	if sizeBytes > s.maxFileSize {
		return apperr.Validation("file exceeds the maximum allowed size")
	}
	return nil
}
