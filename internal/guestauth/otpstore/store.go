// Package otpstore keeps the guest verification state in Redis: the live
// verification sessions and the offers queued behind them. Everything here
// expires on its own; nothing verification-related touches Postgres.
package otpstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace_backend/internal/guestauth/gate"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "guest:session:"
	queuedKeyPrefix  = "guest:queued:"
)

// Session is one verification flow in progress.
type Session struct {
	ID          uuid.UUID      `json:"id"`
	Step        gate.Step      `json:"step"`
	RequestID   uuid.UUID      `json:"requestId"`
	Phone       string         `json:"phone,omitempty"`
	Code        string         `json:"code,omitempty"`
	Attempts    int            `json:"attempts"`
	QueuedOffer *QueuedOffer   `json:"queuedOffer,omitempty"`
}

// QueuedOffer is an offer draft held back until verification completes, or
// until its database write succeeds.
type QueuedOffer struct {
	ID           uuid.UUID `json:"id"`
	RequestID    uuid.UUID `json:"requestId"`
	PriceCents   int64     `json:"priceCents"`
	DeliveryDays *int      `json:"deliveryDays,omitempty"`
	Negotiable   bool      `json:"negotiable"`
	QueuedAt     time.Time `json:"queuedAt"`
}

// Store provides access to verification sessions and queued offers.
type Store struct {
	client      *redis.Client
	otpTTL      time.Duration
	maxAttempts int
	queuedTTL   time.Duration
}

// New creates a new store on an existing Redis client.
func New(client *redis.Client, cfg config.GuestAuthConfig) *Store {
	return &Store{
		client:      client,
		otpTTL:      cfg.GetOTPTTL(),
		maxAttempts: cfg.GetOTPMaxAttempts(),
		queuedTTL:   cfg.GetQueuedOfferTTL(),
	}
}

// MaxAttempts returns the configured verification attempt limit.
func (s *Store) MaxAttempts() int { return s.maxAttempts }

// SaveSession writes a session, refreshing its expiry.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sess.ID.String(), data, s.otpTTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession loads a session; an expired or unknown ID is NotFound.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, apperr.NotFound("verification session not found or expired")
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

// DeleteSession removes a session. Deleting an absent session is a no-op.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id.String()).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PushQueuedOffer stores an offer draft for a verified user until its
// database write succeeds.
func (s *Store) PushQueuedOffer(ctx context.Context, userID uuid.UUID, offer QueuedOffer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("marshal queued offer: %w", err)
	}
	key := queuedKeyPrefix + userID.String()
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.queuedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push queued offer: %w", err)
	}
	return nil
}

// ListQueuedOffers returns a user's queued offer drafts, oldest first.
func (s *Store) ListQueuedOffers(ctx context.Context, userID uuid.UUID) ([]QueuedOffer, error) {
	entries, err := s.client.LRange(ctx, queuedKeyPrefix+userID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list queued offers: %w", err)
	}
	out := make([]QueuedOffer, 0, len(entries))
	for _, entry := range entries {
		var offer QueuedOffer
		if err := json.Unmarshal([]byte(entry), &offer); err != nil {
			return nil, fmt.Errorf("unmarshal queued offer: %w", err)
		}
		out = append(out, offer)
	}
	return out, nil
}

// RemoveQueuedOffer drops one draft from a user's queue once it is confirmed.
func (s *Store) RemoveQueuedOffer(ctx context.Context, userID uuid.UUID, offerID uuid.UUID) error {
	offers, err := s.ListQueuedOffers(ctx, userID)
	if err != nil {
		return err
	}
	for _, offer := range offers {
		if offer.ID != offerID {
			continue
		}
		data, err := json.Marshal(offer)
		if err != nil {
			return fmt.Errorf("marshal queued offer: %w", err)
		}
		if err := s.client.LRem(ctx, queuedKeyPrefix+userID.String(), 1, data).Err(); err != nil {
			return fmt.Errorf("remove queued offer: %w", err)
		}
		return nil
	}
	return nil
}
