// Package transport defines request/response DTOs for the conversations module.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// OpenConversationRequest opens (or resumes) the chat for an offer.
type OpenConversationRequest struct {
	OfferID uuid.UUID `json:"offerId" binding:"required" validate:"required"`
}

// SendMessageRequest carries a text message body.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

// ConversationResponse is the public shape of a conversation.
type ConversationResponse struct {
	ID           uuid.UUID `json:"id"`
	RequestID    uuid.UUID `json:"requestId"`
	OfferID      uuid.UUID `json:"offerId"`
	OwnerID      uuid.UUID `json:"ownerId"`
	ProviderID   uuid.UUID `json:"providerId"`
	Status       string    `json:"status"`
	ClosedReason *string   `json:"closedReason,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ConversationSummaryResponse is a conversation with inbox metadata.
type ConversationSummaryResponse struct {
	ConversationResponse
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	LastMessageBody *string    `json:"lastMessageBody,omitempty"`
	UnreadCount     int        `json:"unreadCount"`
}

// MessageResponse is the public shape of a message.
type MessageResponse struct {
	ID             uuid.UUID  `json:"id"`
	ClientRef      uuid.UUID  `json:"clientRef"`
	ConversationID uuid.UUID  `json:"conversationId"`
	SenderID       uuid.UUID  `json:"senderId"`
	Body           string     `json:"body"`
	VoiceFileKey   *string    `json:"voiceFileKey,omitempty"`
	Pending        bool       `json:"pending"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// SessionResponse is the session state returned by open.
type SessionResponse struct {
	Phase        string               `json:"phase"`
	Conversation ConversationResponse `json:"conversation"`
	Messages     []MessageResponse    `json:"messages"`
}

// VoiceURLResponse carries a presigned download URL for a voice message.
type VoiceURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
