// Package repository provides persistence for the offers bounded context.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_backend/internal/offers/domain"
	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Offer represents a provider's bid on a service request.
type Offer struct {
	ID               uuid.UUID
	RequestID        uuid.UUID
	ProviderID       uuid.UUID
	ProviderName     string
	PriceCents       int64
	DeliveryDays     *int
	Negotiable       bool
	Status           domain.Status
	AttachmentURLs   []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OfferWithRequest enriches an offer with the parent request fields the
// transition guards need.
type OfferWithRequest struct {
	Offer
	RequestOwnerID       uuid.UUID
	RequestStatus        string
	RequestTitle         string
	RequestContactMethod string
}

const offerNotFoundMsg = "offer not found"

// Repository provides access to offer rows.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new offers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool for transaction composition in the service.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

const offerColumns = `id, request_id, provider_id, provider_name, price_cents,
	delivery_days, negotiable, status, attachment_urls, created_at, updated_at`

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	var status string
	err := row.Scan(
		&o.ID, &o.RequestID, &o.ProviderID, &o.ProviderName, &o.PriceCents,
		&o.DeliveryDays, &o.Negotiable, &status, &o.AttachmentURLs,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Offer{}, err
	}
	o.Status = domain.Status(status)
	return o, nil
}

// Create inserts a new offer in pending status.
func (r *Repository) Create(ctx context.Context, o Offer) (Offer, error) {
	query := `
		INSERT INTO offers (request_id, provider_id, provider_name, price_cents, delivery_days, negotiable, attachment_urls, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id, status, created_at, updated_at`

	var status string
	err := r.pool.QueryRow(ctx, query,
		o.RequestID, o.ProviderID, o.ProviderName, o.PriceCents,
		o.DeliveryDays, o.Negotiable, o.AttachmentURLs,
	).Scan(&o.ID, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Offer{}, fmt.Errorf("create offer: %w", err)
	}
	o.Status = domain.Status(status)

	return o, nil
}

// GetByID retrieves an offer by its ID.
func (r *Repository) GetByID(ctx context.Context, offerID uuid.UUID) (Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	o, err := scanOffer(r.pool.QueryRow(ctx, query, offerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Offer{}, apperr.NotFound(offerNotFoundMsg)
	}
	if err != nil {
		return Offer{}, fmt.Errorf("get offer by id: %w", err)
	}

	return o, nil
}

// GetByIDWithRequest retrieves an offer joined with its parent request.
func (r *Repository) GetByIDWithRequest(ctx context.Context, offerID uuid.UUID) (OfferWithRequest, error) {
	query := `
		SELECT o.id, o.request_id, o.provider_id, o.provider_name, o.price_cents,
		       o.delivery_days, o.negotiable, o.status, o.attachment_urls,
		       o.created_at, o.updated_at,
		       r.author_id, r.status, r.title, r.contact_method
		FROM offers o
		JOIN requests r ON r.id = o.request_id
		WHERE o.id = $1`

	var ow OfferWithRequest
	var offerStatus string
	err := r.pool.QueryRow(ctx, query, offerID).Scan(
		&ow.ID, &ow.RequestID, &ow.ProviderID, &ow.ProviderName, &ow.PriceCents,
		&ow.DeliveryDays, &ow.Negotiable, &offerStatus, &ow.AttachmentURLs,
		&ow.CreatedAt, &ow.UpdatedAt,
		&ow.RequestOwnerID, &ow.RequestStatus, &ow.RequestTitle, &ow.RequestContactMethod,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return OfferWithRequest{}, apperr.NotFound(offerNotFoundMsg)
	}
	if err != nil {
		return OfferWithRequest{}, fmt.Errorf("get offer with request: %w", err)
	}
	ow.Status = domain.Status(offerStatus)

	return ow, nil
}

// ListForRequest returns all offers on a request, oldest first.
// This is the authoritative per-request fetch path.
func (r *Repository) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE request_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list offers for request: %w", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// ListForProvider returns all offers submitted by a provider, newest first.
func (r *Repository) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE provider_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("list offers for provider: %w", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// UpdateStatus transitions an offer's status with an optimistic guard on the
// expected current statuses. Returns Conflict when a concurrent actor won.
func (r *Repository) UpdateStatus(ctx context.Context, offerID uuid.UUID, to domain.Status, expectedFrom []string) (Offer, error) {
	query := `
		UPDATE offers
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3::text[])
		RETURNING ` + offerColumns

	o, err := scanOffer(r.pool.QueryRow(ctx, query, offerID, string(to), expectedFrom))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the offer vanished or a concurrent transition got there first.
		return Offer{}, apperr.Conflict("offer is no longer in a state accepting this action")
	}
	if err != nil {
		return Offer{}, fmt.Errorf("update offer status: %w", err)
	}

	return o, nil
}

// AcceptTx runs phase one of the acceptance as a single transaction:
// the winning offer becomes accepted, every acceptable sibling becomes
// rejected, and the parent request is assigned to the winner.
// Returns the IDs of the rejected siblings.
func (r *Repository) AcceptTx(ctx context.Context, requestID, offerID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cmd, err := tx.Exec(ctx, `
		UPDATE offers SET status = 'accepted', updated_at = now()
		WHERE id = $1 AND request_id = $2 AND status = ANY($3::text[])`,
		offerID, requestID, []string{"pending", "negotiating"},
	)
	if err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, apperr.Conflict("offer was already decided by a concurrent action")
	}

	rows, err := tx.Query(ctx, `
		UPDATE offers SET status = 'rejected', updated_at = now()
		WHERE request_id = $1 AND id != $2 AND status = ANY($3::text[])
		RETURNING id`,
		requestID, offerID, []string{"pending", "negotiating"},
	)
	if err != nil {
		return nil, fmt.Errorf("reject sibling offers: %w", err)
	}
	var rejected []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rejected sibling: %w", err)
		}
		rejected = append(rejected, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cmd, err = tx.Exec(ctx, `
		UPDATE requests SET status = 'assigned', accepted_offer_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'active'`,
		requestID, offerID,
	)
	if err != nil {
		return nil, fmt.Errorf("assign request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, apperr.Conflict("request is no longer active")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit accept tx: %w", err)
	}

	return rejected, nil
}

// CompleteTx marks an accepted offer and its parent request completed together.
func (r *Repository) CompleteTx(ctx context.Context, requestID, offerID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cmd, err := tx.Exec(ctx, `
		UPDATE offers SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'accepted'`,
		offerID,
	)
	if err != nil {
		return fmt.Errorf("complete offer: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflict("offer is not accepted")
	}

	cmd, err = tx.Exec(ctx, `
		UPDATE requests SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'assigned' AND accepted_offer_id = $2`,
		requestID, offerID,
	)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflict("request is not assigned to this offer")
	}

	return tx.Commit(ctx)
}

// RequestMeta carries the request fields the offer guards need at creation time.
type RequestMeta struct {
	ID            uuid.UUID
	AuthorID      uuid.UUID
	Status        string
	Title         string
	ContactMethod string
}

// GetRequestMeta loads the parent request fields needed to guard offer creation.
func (r *Repository) GetRequestMeta(ctx context.Context, requestID uuid.UUID) (RequestMeta, error) {
	var m RequestMeta
	err := r.pool.QueryRow(ctx,
		`SELECT id, author_id, status, title, contact_method FROM requests WHERE id = $1`,
		requestID,
	).Scan(&m.ID, &m.AuthorID, &m.Status, &m.Title, &m.ContactMethod)
	if errors.Is(err, pgx.ErrNoRows) {
		return RequestMeta{}, apperr.NotFound("request not found")
	}
	if err != nil {
		return RequestMeta{}, fmt.Errorf("get request meta: %w", err)
	}
	return m, nil
}

// HasActiveOfferByProvider reports whether the provider already has a live
// (pending or negotiating) offer on the request.
func (r *Repository) HasActiveOfferByProvider(ctx context.Context, requestID, providerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM offers
			WHERE request_id = $1 AND provider_id = $2 AND status = ANY($3::text[])
		)`,
		requestID, providerID, []string{"pending", "negotiating"},
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active offer: %w", err)
	}
	return exists, nil
}
