// Package repository provides persistence for the requests bounded context.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Request represents a service ask posted by a requester.
type Request struct {
	ID              uuid.UUID
	AuthorID        uuid.UUID
	Title           string
	Description     string
	Status          string // active | assigned | completed | archived
	AcceptedOfferID *uuid.UUID
	ContactMethod   string // whatsapp | chat | both
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const requestNotFoundMsg = "request not found"

const requestColumns = `id, author_id, title, description, status, accepted_offer_id, contact_method, created_at, updated_at`

// Repository provides access to request rows.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new requests repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.AuthorID, &r.Title, &r.Description, &r.Status,
		&r.AcceptedOfferID, &r.ContactMethod, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// Create inserts a new active request.
func (r *Repository) Create(ctx context.Context, req Request) (Request, error) {
	query := `
		INSERT INTO requests (author_id, title, description, contact_method, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING id, status, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		req.AuthorID, req.Title, req.Description, req.ContactMethod,
	).Scan(&req.ID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, fmt.Errorf("create request: %w", err)
	}

	return req, nil
}

// GetByID retrieves a request by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, apperr.NotFound(requestNotFoundMsg)
	}
	if err != nil {
		return Request{}, fmt.Errorf("get request by id: %w", err)
	}

	return req, nil
}

// ListByAuthor returns a requester's requests, newest first. Archived
// requests are excluded unless includeArchived is set.
func (r *Repository) ListByAuthor(ctx context.Context, authorID uuid.UUID, includeArchived bool) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE author_id = $1`
	if !includeArchived {
		query += ` AND status != 'archived'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("list requests by author: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ListActive returns active requests for the public feed, newest first.
func (r *Repository) ListActive(ctx context.Context, limit int) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE status = 'active' ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list active requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Archive marks a request archived. Requests are never deleted.
func (r *Repository) Archive(ctx context.Context, id, authorID uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE requests SET status = 'archived', updated_at = now()
		WHERE id = $1 AND author_id = $2 AND status != 'archived'`,
		id, authorID,
	)
	if err != nil {
		return fmt.Errorf("archive request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound(requestNotFoundMsg)
	}

	return nil
}
