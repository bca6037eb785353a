// Package repository provides persistence for user profiles.
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

// Profile represents a marketplace user. Guests become profiles the moment
// their phone is verified; onboarding fields may still be empty at that point.
type Profile struct {
	ID          uuid.UUID
	Phone       string
	DisplayName string
	Email       *string
	Interests   []string
	Cities      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const profileNotFoundMsg = "profile not found"

const profileColumns = `id, phone, display_name, email, interests, cities, created_at, updated_at`

// Repository provides access to profile rows.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new profiles repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.Phone, &p.DisplayName, &p.Email,
		&p.Interests, &p.Cities, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// GetByID retrieves a profile by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, apperr.NotFound(profileNotFoundMsg)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by id: %w", err)
	}
	return p, nil
}

// GetByPhone retrieves a profile by its E.164 phone number.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE phone = $1`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, apperr.NotFound(profileNotFoundMsg)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by phone: %w", err)
	}
	return p, nil
}

// UpsertByPhone resolves-or-creates a profile for a verified phone number.
// The phone column is unique, so concurrent verification of the same number
// converges on a single row.
func (r *Repository) UpsertByPhone(ctx context.Context, phone string) (Profile, bool, error) {
	var p Profile
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (phone)
		VALUES ($1)
		ON CONFLICT (phone) DO UPDATE SET updated_at = now()
		RETURNING `+profileColumns+`, (xmax = 0)`,
		phone,
	).Scan(
		&p.ID, &p.Phone, &p.DisplayName, &p.Email,
		&p.Interests, &p.Cities, &p.CreatedAt, &p.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return Profile{}, false, fmt.Errorf("upsert profile by phone: %w", err)
	}
	return p, inserted, nil
}

// Update persists onboarding fields for a profile.
func (r *Repository) Update(ctx context.Context, p Profile) (Profile, error) {
	updated, err := scanProfile(r.pool.QueryRow(ctx, `
		UPDATE profiles
		SET display_name = $2, email = $3, interests = $4, cities = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns,
		p.ID, p.DisplayName, p.Email, p.Interests, p.Cities,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, apperr.NotFound(profileNotFoundMsg)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}
