// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"marketplace_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Offer Domain Events
// =============================================================================

// OfferCreated is published when a provider submits a new offer on a request.
type OfferCreated struct {
	BaseEvent
	OfferID      uuid.UUID `json:"offerId"`
	RequestID    uuid.UUID `json:"requestId"`
	ProviderID   uuid.UUID `json:"providerId"`
	OwnerID      uuid.UUID `json:"ownerId"`
	PriceCents   int64     `json:"priceCents"`
	RequestTitle string    `json:"requestTitle"`
}

func (e OfferCreated) EventName() string { return "offers.offer.created" }

// NegotiationStarted is published when a request owner opens negotiation on an offer.
type NegotiationStarted struct {
	BaseEvent
	OfferID    uuid.UUID `json:"offerId"`
	RequestID  uuid.UUID `json:"requestId"`
	ProviderID uuid.UUID `json:"providerId"`
	OwnerID    uuid.UUID `json:"ownerId"`
}

func (e NegotiationStarted) EventName() string { return "offers.negotiation.started" }

// OfferAccepted is published after phase one of the acceptance commits:
// the offer is accepted, siblings are rejected, and the request is assigned.
type OfferAccepted struct {
	BaseEvent
	OfferID          uuid.UUID   `json:"offerId"`
	RequestID        uuid.UUID   `json:"requestId"`
	ProviderID       uuid.UUID   `json:"providerId"`
	OwnerID          uuid.UUID   `json:"ownerId"`
	RejectedOfferIDs []uuid.UUID `json:"rejectedOfferIds"`
	PriceCents       int64       `json:"priceCents"`
	ContactMethod    string      `json:"contactMethod"`
	ProviderPhone    string      `json:"providerPhone,omitempty"`
	ProviderEmail    string      `json:"providerEmail,omitempty"`
	RequestTitle     string      `json:"requestTitle"`
}

func (e OfferAccepted) EventName() string { return "offers.offer.accepted" }

// OfferCancelled is published when a provider withdraws a pending offer.
type OfferCancelled struct {
	BaseEvent
	OfferID   uuid.UUID `json:"offerId"`
	RequestID uuid.UUID `json:"requestId"`
	OwnerID   uuid.UUID `json:"ownerId"`
}

func (e OfferCancelled) EventName() string { return "offers.offer.cancelled" }

// OfferCompleted is published when the owner marks an accepted offer completed.
type OfferCompleted struct {
	BaseEvent
	OfferID    uuid.UUID `json:"offerId"`
	RequestID  uuid.UUID `json:"requestId"`
	ProviderID uuid.UUID `json:"providerId"`
}

func (e OfferCompleted) EventName() string { return "offers.offer.completed" }

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationClosed is published when a conversation is closed with a reason.
type ConversationClosed struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	RequestID      uuid.UUID `json:"requestId"`
	Reason         string    `json:"reason"`
}

func (e ConversationClosed) EventName() string { return "conversations.closed" }

// MessageSent is published when a message is persisted to a conversation.
type MessageSent struct {
	BaseEvent
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	RecipientID    uuid.UUID `json:"recipientId"`
	HasVoice       bool      `json:"hasVoice"`
}

func (e MessageSent) EventName() string { return "conversations.message.sent" }

// =============================================================================
// Guest Auth Domain Events
// =============================================================================

// GuestVerified is published when a guest completes phone/OTP verification.
type GuestVerified struct {
	BaseEvent
	ProfileID uuid.UUID `json:"profileId"`
	Phone     string    `json:"phone"`
	NewUser   bool      `json:"newUser"`
}

func (e GuestVerified) EventName() string { return "guestauth.verified" }

// =============================================================================
// Profile Domain Events
// =============================================================================

// ProfileOnboarded is published when a profile transitions from incomplete
// to complete onboarding.
type ProfileOnboarded struct {
	BaseEvent
	ProfileID uuid.UUID `json:"profileId"`
}

func (e ProfileOnboarded) EventName() string { return "profiles.onboarded" }

// =============================================================================
// Scheduler Events
// =============================================================================

// AcceptanceCleanupDue is published by the worker when a cleanup outbox
// record is due for retry (closing sibling conversations after an accept).
type AcceptanceCleanupDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	OfferID  uuid.UUID `json:"offerId"`
}

func (e AcceptanceCleanupDue) EventName() string { return "offers.acceptance.cleanup_due" }
