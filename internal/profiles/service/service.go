// Package service provides profile management and onboarding checks.
package service

import (
	"context"
	"strings"

	"marketplace_backend/internal/events"
	"marketplace_backend/internal/profiles/repository"
	"marketplace_backend/internal/profiles/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

// Service coordinates profile operations.
type Service struct {
	repo *repository.Repository
	bus  events.Bus
	log  *logger.Logger
}

// New creates a new profiles service.
func New(repo *repository.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Get returns a profile with its onboarding status.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (transport.ProfileResponse, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return transport.ProfileResponse{}, err
	}
	return toResponse(p), nil
}

// ResolveByPhone resolves-or-creates a profile for a verified phone number.
// Returns the profile and whether it was newly created.
func (s *Service) ResolveByPhone(ctx context.Context, phone string) (transport.ProfileResponse, bool, error) {
	p, created, err := s.repo.UpsertByPhone(ctx, phone)
	if err != nil {
		return transport.ProfileResponse{}, false, err
	}
	if created {
		s.log.Info("profile created for verified phone", "profileId", p.ID)
	}
	return toResponse(p), created, nil
}

// Update persists onboarding fields and returns the refreshed profile.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, req transport.UpdateProfileRequest) (transport.ProfileResponse, error) {
	current, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return transport.ProfileResponse{}, err
	}
	wasComplete := onboardingComplete(current)

	current.DisplayName = strings.TrimSpace(req.DisplayName)
	current.Email = req.Email
	current.Interests = req.Interests
	current.Cities = req.Cities

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return transport.ProfileResponse{}, err
	}

	// Completing onboarding unlocks deferred work, e.g. queued guest offers.
	if !wasComplete && onboardingComplete(updated) && s.bus != nil {
		s.bus.Publish(ctx, events.ProfileOnboarded{
			BaseEvent: events.NewBaseEvent(),
			ProfileID: updated.ID,
		})
	}

	return toResponse(updated), nil
}

// IsOnboardingComplete reports whether a profile has every field the
// marketplace requires before it can place offers or requests.
func (s *Service) IsOnboardingComplete(ctx context.Context, userID uuid.UUID) (bool, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return onboardingComplete(p), nil
}

// DisplayNameFor returns the display name for a profile, falling back to a
// masked phone when onboarding has not filled one in yet.
func (s *Service) DisplayNameFor(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.DisplayName != "" {
		return p.DisplayName, nil
	}
	return maskPhone(p.Phone), nil
}

// FindByPhone returns the profile ID holding a phone number, if any.
func (s *Service) FindByPhone(ctx context.Context, phone string) (uuid.UUID, bool, error) {
	p, err := s.repo.GetByPhone(ctx, phone)
	if apperr.Is(err, apperr.KindNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return p.ID, true, nil
}

// ContactFor returns the phone and email on file for a profile. Email may be
// empty; phone is always set for verified profiles.
func (s *Service) ContactFor(ctx context.Context, userID uuid.UUID) (phone string, email string, err error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if p.Email != nil {
		email = *p.Email
	}
	return p.Phone, email, nil
}

func onboardingComplete(p repository.Profile) bool {
	return p.DisplayName != "" && (len(p.Interests) > 0 || len(p.Cities) > 0)
}

// maskPhone keeps the country code and last two digits visible.
func maskPhone(phone string) string {
	if len(phone) < 6 {
		return phone
	}
	return phone[:4] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-2:]
}

func toResponse(p repository.Profile) transport.ProfileResponse {
	return transport.ProfileResponse{
		ID:                 p.ID,
		Phone:              p.Phone,
		DisplayName:        p.DisplayName,
		Email:              p.Email,
		Interests:          p.Interests,
		Cities:             p.Cities,
		OnboardingComplete: onboardingComplete(p),
		CreatedAt:          p.CreatedAt,
	}
}
