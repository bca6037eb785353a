// Package transport defines request/response DTOs for the guest gate.
package transport

import (
	"github.com/google/uuid"
)

// BeginGateRequest opens the verification gate for an action on a request.
type BeginGateRequest struct {
	RequestID uuid.UUID `json:"requestId" binding:"required" validate:"required"`
}

// QueuedOfferDraft is an offer composed before verification. It is held back
// and submitted once the phone is confirmed.
type QueuedOfferDraft struct {
	PriceCents   int64 `json:"priceCents" validate:"required,min=1"`
	DeliveryDays *int  `json:"deliveryDays,omitempty" validate:"omitempty,min=1,max=365"`
	Negotiable   bool  `json:"negotiable"`
}

// SubmitPhoneRequest carries the guest's phone number, optionally with a
// queued offer draft.
type SubmitPhoneRequest struct {
	SessionID   uuid.UUID         `json:"sessionId" binding:"required" validate:"required"`
	Phone       string            `json:"phone" validate:"required,min=7,max=20"`
	QueuedOffer *QueuedOfferDraft `json:"queuedOffer,omitempty"`
}

// SessionRequest addresses an existing verification session.
type SessionRequest struct {
	SessionID uuid.UUID `json:"sessionId" binding:"required" validate:"required"`
}

// VerifyRequest carries the one-time code.
type VerifyRequest struct {
	SessionID uuid.UUID `json:"sessionId" binding:"required" validate:"required"`
	Code      string    `json:"code" validate:"required,len=4,numeric"`
}

// StepResponse reports the gate's current step.
type StepResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Step      string    `json:"step"`
}

// VerifyResponse is the outcome of a successful verification.
type VerifyResponse struct {
	Token              string     `json:"token"`
	ProfileID          uuid.UUID  `json:"profileId"`
	Guest              bool       `json:"guest"`
	NewUser            bool       `json:"newUser"`
	OnboardingComplete bool       `json:"onboardingComplete"`
	SubmittedOfferID   *uuid.UUID `json:"submittedOfferId,omitempty"`
	OfferQueued        bool       `json:"offerQueued"`
}
