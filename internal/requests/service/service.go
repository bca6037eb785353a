// Package service implements business logic for the requests module.
package service

import (
	"context"

	"marketplace_backend/internal/requests/repository"
	"marketplace_backend/internal/requests/transport"
	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
)

const defaultFeedLimit = 50

// OffersReader resolves the merged offer set for a request. Implemented by
// an adapter over the offers module so requests does not import it directly.
type OffersReader interface {
	OffersForRequest(ctx context.Context, requestID uuid.UUID, viewerID uuid.UUID) ([]transport.OfferSummary, error)
}

// Service implements request lifecycle operations.
type Service struct {
	repo   *repository.Repository
	offers OffersReader
}

// New creates a new requests service.
func New(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// SetOffersReader injects the offers adapter (wired in the composition root).
func (s *Service) SetOffersReader(r OffersReader) {
	s.offers = r
}

// Create posts a new active request for the author.
func (s *Service) Create(ctx context.Context, authorID uuid.UUID, req transport.CreateRequestRequest) (transport.RequestResponse, error) {
	contactMethod := req.ContactMethod
	if contactMethod == "" {
		contactMethod = "chat"
	}

	created, err := s.repo.Create(ctx, repository.Request{
		AuthorID:      authorID,
		Title:         req.Title,
		Description:   req.Description,
		ContactMethod: contactMethod,
	})
	if err != nil {
		return transport.RequestResponse{}, err
	}

	return toResponse(created), nil
}

// Get returns a single request with its merged offers.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewerID uuid.UUID) (transport.RequestDetailResponse, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.RequestDetailResponse{}, err
	}

	detail := transport.RequestDetailResponse{RequestResponse: toResponse(req)}
	if s.offers != nil {
		offers, err := s.offers.OffersForRequest(ctx, id, viewerID)
		if err != nil {
			return transport.RequestDetailResponse{}, err
		}
		detail.Offers = offers
	}

	return detail, nil
}

// List returns either the viewer's own requests or the active feed.
func (s *Service) List(ctx context.Context, viewerID uuid.UUID, req transport.ListRequestsRequest) ([]transport.RequestResponse, error) {
	var (
		rows []repository.Request
		err  error
	)
	if req.Mine {
		rows, err = s.repo.ListByAuthor(ctx, viewerID, req.IncludeArchived)
	} else {
		limit := req.Limit
		if limit == 0 {
			limit = defaultFeedLimit
		}
		rows, err = s.repo.ListActive(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	out := make([]transport.RequestResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toResponse(r))
	}
	return out, nil
}

// AuthorOf returns the author of a request. Used by the guest verification
// gate's own-request guard.
func (s *Service) AuthorOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return req.AuthorID, nil
}

// Archive archives the author's request. Archived requests stay readable.
func (s *Service) Archive(ctx context.Context, id, actorID uuid.UUID) error {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.AuthorID != actorID {
		return apperr.Forbidden("only the author can archive a request")
	}

	return s.repo.Archive(ctx, id, actorID)
}

func toResponse(r repository.Request) transport.RequestResponse {
	return transport.RequestResponse{
		ID:              r.ID,
		AuthorID:        r.AuthorID,
		Title:           r.Title,
		Description:     r.Description,
		Status:          r.Status,
		AcceptedOfferID: r.AcceptedOfferID,
		ContactMethod:   r.ContactMethod,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
