package storage

import (
	"context"
	"fmt"
	"mime/multipart"

	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
)

// UploadVoiceMessage stores a voice recording for a conversation message and
// returns its file key. Callers treat a failure here as fatal for the send:
// the message must not go out without its audio.
func (s *MinIOService) UploadVoiceMessage(ctx context.Context, conversationID, senderID uuid.UUID, fh *multipart.FileHeader) (string, error) {
	contentType := fh.Header.Get("Content-Type")
	if err := s.ValidateVoiceContentType(contentType); err != nil {
		return "", err
	}
	if err := s.ValidateFileSize(fh.Size); err != nil {
		return "", err
	}

	f, err := fh.Open()
	if err != nil {
		return "", apperr.Unavailable("voice message could not be read")
	}
	defer f.Close()

	folder := fmt.Sprintf("%s/%s", conversationID, senderID)
	fileKey, err := s.uploadObject(ctx, s.voiceBucket, folder, fh.Filename, contentType, f, fh.Size)
	if err != nil {
		return "", apperr.Unavailable("voice message upload failed")
	}
	return fileKey, nil
}

// UploadOfferAttachments stores every attachment for a new offer and returns
// their file keys in input order. Any failure aborts the whole batch.
func (s *MinIOService) UploadOfferAttachments(ctx context.Context, ownerID uuid.UUID, files []*multipart.FileHeader) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, fh := range files {
		contentType := fh.Header.Get("Content-Type")
		if err := s.ValidateAttachmentContentType(contentType); err != nil {
			return nil, err
		}
		if err := s.ValidateFileSize(fh.Size); err != nil {
			return nil, err
		}

		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Unavailable("attachment could not be read")
		}

		key, err := s.uploadObject(ctx, s.attachmentsBucket, ownerID.String(), fh.Filename, contentType, f, fh.Size)
		f.Close()
		if err != nil {
			return nil, apperr.Unavailable("attachment upload failed")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// VoiceDownloadURL returns a presigned URL for a stored voice message.
func (s *MinIOService) VoiceDownloadURL(ctx context.Context, fileKey string) (*PresignedURL, error) {
	return s.GenerateDownloadURL(ctx, s.voiceBucket, fileKey)
}

// AttachmentDownloadURL returns a presigned URL for a stored offer attachment.
func (s *MinIOService) AttachmentDownloadURL(ctx context.Context, fileKey string) (*PresignedURL, error) {
	return s.GenerateDownloadURL(ctx, s.attachmentsBucket, fileKey)
}
