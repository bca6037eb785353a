// Package transport defines request and response DTOs for the profiles module.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// UpdateProfileRequest carries onboarding fields.
type UpdateProfileRequest struct {
	DisplayName string   `json:"displayName" validate:"required,min=2,max=100"`
	Email       *string  `json:"email,omitempty" validate:"omitempty,email"`
	Interests   []string `json:"interests" validate:"required,min=1,dive,min=1,max=60"`
	Cities      []string `json:"cities" validate:"required,min=1,dive,min=1,max=60"`
}

// ProfileResponse represents a profile in API responses.
type ProfileResponse struct {
	ID                 uuid.UUID `json:"id"`
	Phone              string    `json:"phone"`
	DisplayName        string    `json:"displayName"`
	Email              *string   `json:"email,omitempty"`
	Interests          []string  `json:"interests"`
	Cities             []string  `json:"cities"`
	OnboardingComplete bool      `json:"onboardingComplete"`
	CreatedAt          time.Time `json:"createdAt"`
}
