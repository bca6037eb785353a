// Package transport defines request/response DTOs for the offers module.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// CreateOfferRequest is the payload for submitting an offer on a request.
type CreateOfferRequest struct {
	RequestID    uuid.UUID `json:"requestId" binding:"required" validate:"required"`
	PriceCents   int64     `json:"priceCents" validate:"required,min=1"`
	DeliveryDays *int      `json:"deliveryDays,omitempty" validate:"omitempty,min=1,max=365"`
	Negotiable   bool      `json:"negotiable"`
}

// OfferResponse is the public shape of an offer.
type OfferResponse struct {
	ID             uuid.UUID `json:"id"`
	RequestID      uuid.UUID `json:"requestId"`
	ProviderID     uuid.UUID `json:"providerId"`
	ProviderName   string    `json:"providerName"`
	PriceCents     int64     `json:"priceCents"`
	DeliveryDays   *int      `json:"deliveryDays,omitempty"`
	Negotiable     bool      `json:"negotiable"`
	Status         string    `json:"status"`
	AttachmentURLs []string  `json:"attachmentUrls,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AcceptOfferResponse reports the outcome of an acceptance: the winning offer
// and the sibling offers rejected alongside it.
type AcceptOfferResponse struct {
	Offer            OfferResponse `json:"offer"`
	RejectedOfferIDs []uuid.UUID   `json:"rejectedOfferIds"`
}
