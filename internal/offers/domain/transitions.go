package domain

import (
	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
)

// Offer is the minimal offer view the transition guards operate on.
// The repository layer maps its rows onto this before consulting the rules.
type Offer struct {
	ID         uuid.UUID
	RequestID  uuid.UUID
	ProviderID uuid.UUID
	OwnerID    uuid.UUID // author of the parent request
	Negotiable bool
	Status     Status
}

// ValidateStartNegotiation guards pending → negotiating.
// Only the request owner may open negotiation, and only on a negotiable
// offer that is still pending.
func ValidateStartNegotiation(o Offer, actorID uuid.UUID) error {
	if actorID != o.OwnerID {
		return apperr.Forbidden("only the request owner can start negotiation")
	}
	if o.Status != StatusPending {
		return apperr.InvalidState("negotiation can only start on a pending offer")
	}
	if !o.Negotiable {
		return apperr.Forbidden("this offer is not negotiable")
	}
	return nil
}

// ValidateAccept guards pending|negotiating → accepted.
func ValidateAccept(o Offer, actorID uuid.UUID) error {
	if actorID != o.OwnerID {
		return apperr.Forbidden("only the request owner can accept an offer")
	}
	if !Acceptable(o.Status) {
		return apperr.InvalidState("offer cannot be accepted in its current state")
	}
	return nil
}

// ValidateCancel guards pending → cancelled. Only the offer's own provider
// may withdraw, and only before negotiation or acceptance.
func ValidateCancel(o Offer, actorID uuid.UUID) error {
	if actorID != o.ProviderID {
		return apperr.Forbidden("only the offer's provider can cancel it")
	}
	if o.Status != StatusPending {
		return apperr.InvalidState("only a pending offer can be cancelled")
	}
	return nil
}

// ValidateComplete guards accepted → completed. Completing marks both the
// offer and the parent request completed; the service performs that jointly.
func ValidateComplete(o Offer, actorID uuid.UUID) error {
	if actorID != o.OwnerID {
		return apperr.Forbidden("only the request owner can complete an offer")
	}
	if o.Status != StatusAccepted {
		return apperr.InvalidState("only an accepted offer can be completed")
	}
	return nil
}
