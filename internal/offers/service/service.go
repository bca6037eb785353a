// Package service implements the offer lifecycle: creation, negotiation,
// acceptance with sibling rejection, cancellation and completion.
package service

import (
	"context"
	"encoding/json"
	"time"

	"marketplace_backend/internal/events"
	"marketplace_backend/internal/offers/domain"
	"marketplace_backend/internal/offers/outbox"
	"marketplace_backend/internal/offers/reconcile"
	"marketplace_backend/internal/offers/repository"
	"marketplace_backend/internal/offers/transport"
	requeststransport "marketplace_backend/internal/requests/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

// ProfileDirectory resolves display names and contact details for actors.
type ProfileDirectory interface {
	DisplayNameFor(ctx context.Context, userID uuid.UUID) (string, error)
	ContactFor(ctx context.Context, userID uuid.UUID) (phone string, email string, err error)
}

// ConversationCloser closes every conversation on a request except the one
// belonging to the winning offer. Implemented by the conversations module.
type ConversationCloser interface {
	CloseForRequest(ctx context.Context, requestID, keepOfferID uuid.UUID, reason string) error
}

// QueuedOfferSource supplies offers submitted locally but not yet confirmed
// by the database, e.g. guest offers queued behind phone verification.
type QueuedOfferSource interface {
	QueuedOffersForRequest(ctx context.Context, requestID, viewerID uuid.UUID) ([]repository.Offer, error)
}

const cleanupKindCloseConversations = "close_sibling_conversations"

// CleanupPayload is the outbox payload for retried acceptance cleanup.
type CleanupPayload struct {
	RequestID   uuid.UUID `json:"requestId"`
	KeepOfferID uuid.UUID `json:"keepOfferId"`
	Reason      string    `json:"reason"`
}

// Service coordinates offer operations.
type Service struct {
	repo     *repository.Repository
	outbox   *outbox.Repository
	bus      events.Bus
	log      *logger.Logger
	profiles ProfileDirectory
	closer   ConversationCloser
	queued   QueuedOfferSource
}

// New creates a new offers service.
func New(repo *repository.Repository, ob *outbox.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, outbox: ob, bus: bus, log: log}
}

// SetProfileDirectory wires the profile lookup dependency.
func (s *Service) SetProfileDirectory(p ProfileDirectory) { s.profiles = p }

// SetConversationCloser wires the conversation cleanup dependency.
func (s *Service) SetConversationCloser(c ConversationCloser) { s.closer = c }

// SetQueuedOfferSource wires the locally-queued offer source.
func (s *Service) SetQueuedOfferSource(q QueuedOfferSource) { s.queued = q }

// Create submits a new offer on a request. Authors cannot offer on their own
// requests, and a provider holds at most one live offer per request.
func (s *Service) Create(ctx context.Context, providerID uuid.UUID, req transport.CreateOfferRequest, attachmentURLs []string) (transport.OfferResponse, error) {
	meta, err := s.repo.GetRequestMeta(ctx, req.RequestID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	if meta.AuthorID == providerID {
		return transport.OfferResponse{}, apperr.Forbidden("you cannot submit an offer on your own request")
	}
	if meta.Status != "active" {
		return transport.OfferResponse{}, apperr.InvalidState("request is no longer accepting offers")
	}

	exists, err := s.repo.HasActiveOfferByProvider(ctx, req.RequestID, providerID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	if exists {
		return transport.OfferResponse{}, apperr.Conflict("you already have an active offer on this request")
	}

	providerName := ""
	if s.profiles != nil {
		if name, err := s.profiles.DisplayNameFor(ctx, providerID); err == nil {
			providerName = name
		}
	}

	created, err := s.repo.Create(ctx, repository.Offer{
		RequestID:      req.RequestID,
		ProviderID:     providerID,
		ProviderName:   providerName,
		PriceCents:     req.PriceCents,
		DeliveryDays:   req.DeliveryDays,
		Negotiable:     req.Negotiable,
		AttachmentURLs: attachmentURLs,
	})
	if err != nil {
		return transport.OfferResponse{}, err
	}

	s.publish(ctx, events.OfferCreated{
		BaseEvent:    events.NewBaseEvent(),
		OfferID:      created.ID,
		RequestID:    created.RequestID,
		ProviderID:   providerID,
		OwnerID:      meta.AuthorID,
		PriceCents:   created.PriceCents,
		RequestTitle: meta.Title,
	})

	return toResponse(created), nil
}

// Get returns a single offer visible to the viewer: the provider who made it
// or the owner of the parent request.
func (s *Service) Get(ctx context.Context, offerID, viewerID uuid.UUID) (transport.OfferResponse, error) {
	ow, err := s.repo.GetByIDWithRequest(ctx, offerID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	if ow.ProviderID != viewerID && ow.RequestOwnerID != viewerID {
		return transport.OfferResponse{}, apperr.Forbidden("you are not a participant of this offer")
	}
	return toResponse(ow.Offer), nil
}

// ListMine returns every offer the viewer has submitted, newest first.
func (s *Service) ListMine(ctx context.Context, providerID uuid.UUID) ([]transport.OfferResponse, error) {
	offers, err := s.repo.ListForProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.OfferResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toResponse(o))
	}
	return out, nil
}

// StartNegotiation moves a pending, negotiable offer to negotiating.
// Only the request owner may start negotiation.
func (s *Service) StartNegotiation(ctx context.Context, offerID, actorID uuid.UUID) (transport.OfferResponse, error) {
	ow, err := s.repo.GetByIDWithRequest(ctx, offerID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	if err := domain.ValidateStartNegotiation(guardView(ow), actorID); err != nil {
		return transport.OfferResponse{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, offerID, domain.StatusNegotiating, []string{string(domain.StatusPending)})
	if err != nil {
		return transport.OfferResponse{}, err
	}
	s.log.OfferTransition(offerID.String(), string(ow.Status), string(updated.Status), actorID.String())

	s.publish(ctx, events.NegotiationStarted{
		BaseEvent:  events.NewBaseEvent(),
		OfferID:    offerID,
		RequestID:  ow.RequestID,
		ProviderID: ow.ProviderID,
		OwnerID:    ow.RequestOwnerID,
	})

	return toResponse(updated), nil
}

// Accept settles a request on one offer. Phase one is a single transaction:
// the winner becomes accepted, acceptable siblings become rejected, and the
// request is assigned. Phase two closes the losing conversations; a failure
// there never unwinds the acceptance, it is queued for retry instead.
func (s *Service) Accept(ctx context.Context, offerID, actorID uuid.UUID) (transport.AcceptOfferResponse, error) {
	ow, err := s.repo.GetByIDWithRequest(ctx, offerID)
	if err != nil {
		return transport.AcceptOfferResponse{}, err
	}
	if err := domain.ValidateAccept(guardView(ow), actorID); err != nil {
		return transport.AcceptOfferResponse{}, err
	}

	rejected, err := s.repo.AcceptTx(ctx, ow.RequestID, offerID)
	if err != nil {
		return transport.AcceptOfferResponse{}, err
	}
	s.log.OfferTransition(offerID.String(), string(ow.Status), string(domain.StatusAccepted), actorID.String())

	s.runAcceptanceCleanup(ctx, ow.RequestID, offerID)

	providerPhone, providerEmail := "", ""
	if s.profiles != nil {
		if phone, email, err := s.profiles.ContactFor(ctx, ow.ProviderID); err == nil {
			providerPhone, providerEmail = phone, email
		}
	}

	s.publish(ctx, events.OfferAccepted{
		BaseEvent:        events.NewBaseEvent(),
		OfferID:          offerID,
		RequestID:        ow.RequestID,
		ProviderID:       ow.ProviderID,
		OwnerID:          ow.RequestOwnerID,
		RejectedOfferIDs: rejected,
		PriceCents:       ow.PriceCents,
		ContactMethod:    ow.RequestContactMethod,
		ProviderPhone:    providerPhone,
		ProviderEmail:    providerEmail,
		RequestTitle:     ow.RequestTitle,
	})

	accepted, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return transport.AcceptOfferResponse{}, err
	}
	return transport.AcceptOfferResponse{
		Offer:            toResponse(accepted),
		RejectedOfferIDs: rejected,
	}, nil
}

// runAcceptanceCleanup closes sibling conversations after an accept. On
// failure the work lands in the cleanup outbox so the worker retries it.
func (s *Service) runAcceptanceCleanup(ctx context.Context, requestID, keepOfferID uuid.UUID) {
	const reason = "another offer was accepted"

	if s.closer != nil {
		err := s.closer.CloseForRequest(ctx, requestID, keepOfferID, reason)
		if err == nil {
			return
		}
		s.log.Error("closing sibling conversations failed, queueing retry",
			"requestId", requestID, "error", err)
	}

	if _, err := s.outbox.Insert(ctx, outbox.InsertParams{
		OfferID: keepOfferID,
		Kind:    cleanupKindCloseConversations,
		Payload: CleanupPayload{RequestID: requestID, KeepOfferID: keepOfferID, Reason: reason},
		RunAt:   time.Now().UTC().Add(30 * time.Second),
	}); err != nil {
		s.log.Error("queueing acceptance cleanup failed", "requestId", requestID, "error", err)
	}
}

// RunCleanup loads a cleanup outbox record by ID and executes it. Wired to
// the scheduler's retry events.
func (s *Service) RunCleanup(ctx context.Context, outboxID uuid.UUID) error {
	rec, err := s.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded {
		return nil
	}
	var payload CleanupPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return s.outbox.MarkFailed(ctx, rec.ID, "invalid payload: "+err.Error())
	}
	return s.RunCleanupRecord(ctx, rec, payload)
}

const cleanupMaxAttempts = 10

// cleanupRetryDelay grows exponentially with spent attempts, from 30s up to
// a 30m ceiling.
func cleanupRetryDelay(attempts int) time.Duration {
	const (
		base    = 30 * time.Second
		ceiling = 30 * time.Minute
	)
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// RunCleanupRecord executes one claimed cleanup outbox record. Called by the
// worker when a retry comes due. A failure backs the record off; spending the
// attempt budget parks it as failed.
func (s *Service) RunCleanupRecord(ctx context.Context, rec outbox.Record, payload CleanupPayload) error {
	if err := s.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}
	attempts := rec.Attempts + 1
	if s.closer == nil {
		return s.outbox.MarkFailed(ctx, rec.ID, "conversation closer not wired")
	}
	if err := s.closer.CloseForRequest(ctx, payload.RequestID, payload.KeepOfferID, payload.Reason); err != nil {
		if attempts >= cleanupMaxAttempts {
			s.log.Error("acceptance cleanup exhausted its attempts",
				"outboxId", rec.ID, "requestId", payload.RequestID, "error", err)
			return s.outbox.MarkFailed(ctx, rec.ID, err.Error())
		}
		msg := err.Error()
		runAt := time.Now().UTC().Add(cleanupRetryDelay(attempts))
		return s.outbox.MarkPending(ctx, rec.ID, runAt, &msg)
	}
	return s.outbox.MarkSucceeded(ctx, rec.ID)
}

// Cancel withdraws a pending offer. Only the provider may cancel, and only
// before negotiation starts.
func (s *Service) Cancel(ctx context.Context, offerID, actorID uuid.UUID) (transport.OfferResponse, error) {
	ow, err := s.repo.GetByIDWithRequest(ctx, offerID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	if err := domain.ValidateCancel(guardView(ow), actorID); err != nil {
		return transport.OfferResponse{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, offerID, domain.StatusCancelled, []string{string(domain.StatusPending)})
	if err != nil {
		return transport.OfferResponse{}, err
	}
	s.log.OfferTransition(offerID.String(), string(ow.Status), string(updated.Status), actorID.String())

	s.publish(ctx, events.OfferCancelled{
		BaseEvent: events.NewBaseEvent(),
		OfferID:   offerID,
		RequestID: ow.RequestID,
		OwnerID:   ow.RequestOwnerID,
	})

	return toResponse(updated), nil
}

// Complete marks an accepted offer as fulfilled. Only the request owner may
// complete, and the parent request is completed in the same transaction.
func (s *Service) Complete(ctx context.Context, offerID, actorID uuid.UUID) (transport.OfferResponse, error) {
	ow, err := s.repo.GetByIDWithRequest(ctx, offerID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	if err := domain.ValidateComplete(guardView(ow), actorID); err != nil {
		return transport.OfferResponse{}, err
	}

	if err := s.repo.CompleteTx(ctx, ow.RequestID, offerID); err != nil {
		return transport.OfferResponse{}, err
	}
	s.log.OfferTransition(offerID.String(), string(ow.Status), string(domain.StatusCompleted), actorID.String())

	s.publish(ctx, events.OfferCompleted{
		BaseEvent:  events.NewBaseEvent(),
		OfferID:    offerID,
		RequestID:  ow.RequestID,
		ProviderID: ow.ProviderID,
	})

	completed, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return transport.OfferResponse{}, err
	}
	return toResponse(completed), nil
}

// OffersForRequest returns the merged offer set for a request detail view:
// the database rows are authoritative, locally-queued offers awaiting
// confirmation are folded in without being dropped.
func (s *Service) OffersForRequest(ctx context.Context, requestID, viewerID uuid.UUID) ([]requeststransport.OfferSummary, error) {
	confirmed, err := s.repo.ListForRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var pending []repository.Offer
	if s.queued != nil {
		pending, err = s.queued.QueuedOffersForRequest(ctx, requestID, viewerID)
		if err != nil {
			// A degraded queue never blocks the authoritative view.
			s.log.Error("reading queued offers failed", "requestId", requestID, "error", err)
			pending = nil
		}
	}

	merged := reconcile.Merge(confirmed, pending)

	out := make([]requeststransport.OfferSummary, 0, len(merged))
	for _, o := range merged {
		out = append(out, requeststransport.OfferSummary{
			ID:           o.ID,
			ProviderID:   o.ProviderID,
			ProviderName: o.ProviderName,
			PriceCents:   o.PriceCents,
			DeliveryDays: o.DeliveryDays,
			Negotiable:   o.Negotiable,
			Status:       string(o.Status),
			CreatedAt:    o.CreatedAt,
		})
	}
	return out, nil
}

// ParticipantInfo names the parties of an offer's negotiation.
type ParticipantInfo struct {
	RequestID  uuid.UUID
	OwnerID    uuid.UUID
	ProviderID uuid.UUID
	Status     domain.Status
}

// Participants returns the request owner and provider behind an offer.
// Used by the conversations module to authorize chat access.
func (s *Service) Participants(ctx context.Context, offerID uuid.UUID) (ParticipantInfo, error) {
	ow, err := s.repo.GetByIDWithRequest(ctx, offerID)
	if err != nil {
		return ParticipantInfo{}, err
	}
	return ParticipantInfo{
		RequestID:  ow.RequestID,
		OwnerID:    ow.RequestOwnerID,
		ProviderID: ow.ProviderID,
		Status:     ow.Status,
	}, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, evt)
}

func guardView(ow repository.OfferWithRequest) domain.Offer {
	return domain.Offer{
		ID:         ow.ID,
		RequestID:  ow.RequestID,
		ProviderID: ow.ProviderID,
		OwnerID:    ow.RequestOwnerID,
		Negotiable: ow.Negotiable,
		Status:     ow.Status,
	}
}

func toResponse(o repository.Offer) transport.OfferResponse {
	return transport.OfferResponse{
		ID:             o.ID,
		RequestID:      o.RequestID,
		ProviderID:     o.ProviderID,
		ProviderName:   o.ProviderName,
		PriceCents:     o.PriceCents,
		DeliveryDays:   o.DeliveryDays,
		Negotiable:     o.Negotiable,
		Status:         string(o.Status),
		AttachmentURLs: o.AttachmentURLs,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}
