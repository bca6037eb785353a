// Package transport defines request/response DTOs for the requests module.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequestRequest is the payload for posting a new service request.
type CreateRequestRequest struct {
	Title         string `json:"title" binding:"required" validate:"required,min=3,max=200"`
	Description   string `json:"description" validate:"max=4000"`
	ContactMethod string `json:"contactMethod" validate:"omitempty,oneof=whatsapp chat both"`
}

// RequestResponse is the public shape of a request.
type RequestResponse struct {
	ID              uuid.UUID  `json:"id"`
	AuthorID        uuid.UUID  `json:"authorId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	AcceptedOfferID *uuid.UUID `json:"acceptedOfferId,omitempty"`
	ContactMethod   string     `json:"contactMethod"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// RequestDetailResponse is a request together with its merged offer set.
type RequestDetailResponse struct {
	RequestResponse
	Offers []OfferSummary `json:"offers"`
}

// OfferSummary is the offer shape embedded in a request detail view.
type OfferSummary struct {
	ID           uuid.UUID `json:"id"`
	ProviderID   uuid.UUID `json:"providerId"`
	ProviderName string    `json:"providerName"`
	PriceCents   int64     `json:"priceCents"`
	DeliveryDays *int      `json:"deliveryDays,omitempty"`
	Negotiable   bool      `json:"negotiable"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListRequestsRequest is the query for listing requests.
type ListRequestsRequest struct {
	Mine            bool `form:"mine"`
	IncludeArchived bool `form:"includeArchived"`
	Limit           int  `form:"limit" validate:"omitempty,min=1,max=100"`
}
