package otpstore

import (
	"context"
	"testing"
	"time"

	"marketplace_backend/internal/guestauth/gate"
	"marketplace_backend/platform/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type testConfig struct{}

func (testConfig) GetOTPTTL() time.Duration         { return 5 * time.Minute }
func (testConfig) GetOTPMaxAttempts() int           { return 5 }
func (testConfig) GetQueuedOfferTTL() time.Duration { return time.Hour }

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, testConfig{}), mr
}

func TestSessionRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := Session{
		ID:        uuid.New(),
		Step:      gate.StepOTP,
		RequestID: uuid.New(),
		Phone:     "+966501234567",
		Code:      "123456",
		Attempts:  2,
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Step != gate.StepOTP || got.Phone != sess.Phone || got.Attempts != 2 {
		t.Fatalf("GetSession() = %+v, want %+v", got, sess)
	}
}

func TestSessionExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := Session{ID: uuid.New(), Step: gate.StepPhone, RequestID: uuid.New()}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	mr.FastForward(6 * time.Minute)

	_, err := store.GetSession(ctx, sess.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("error = %v, want not found after expiry", err)
	}
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := Session{ID: uuid.New(), Step: gate.StepPhone, RequestID: uuid.New()}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("second DeleteSession() error = %v", err)
	}
	if _, err := store.GetSession(ctx, sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("error = %v, want not found after delete", err)
	}
}

func TestQueuedOffersRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	first := QueuedOffer{ID: uuid.New(), RequestID: uuid.New(), PriceCents: 5000, QueuedAt: time.Now().UTC().Truncate(time.Second)}
	second := QueuedOffer{ID: uuid.New(), RequestID: uuid.New(), PriceCents: 7500, Negotiable: true, QueuedAt: time.Now().UTC().Truncate(time.Second)}

	if err := store.PushQueuedOffer(ctx, userID, first); err != nil {
		t.Fatalf("PushQueuedOffer() error = %v", err)
	}
	if err := store.PushQueuedOffer(ctx, userID, second); err != nil {
		t.Fatalf("PushQueuedOffer() error = %v", err)
	}

	offers, err := store.ListQueuedOffers(ctx, userID)
	if err != nil {
		t.Fatalf("ListQueuedOffers() error = %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("len(offers) = %d, want 2", len(offers))
	}
	if offers[0].ID != first.ID || offers[1].ID != second.ID {
		t.Fatal("queued offers came back out of order")
	}
}

func TestRemoveQueuedOffer(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	keep := QueuedOffer{ID: uuid.New(), RequestID: uuid.New(), PriceCents: 5000, QueuedAt: time.Now().UTC().Truncate(time.Second)}
	drop := QueuedOffer{ID: uuid.New(), RequestID: uuid.New(), PriceCents: 7500, QueuedAt: time.Now().UTC().Truncate(time.Second)}
	for _, o := range []QueuedOffer{keep, drop} {
		if err := store.PushQueuedOffer(ctx, userID, o); err != nil {
			t.Fatalf("PushQueuedOffer() error = %v", err)
		}
	}

	if err := store.RemoveQueuedOffer(ctx, userID, drop.ID); err != nil {
		t.Fatalf("RemoveQueuedOffer() error = %v", err)
	}

	offers, err := store.ListQueuedOffers(ctx, userID)
	if err != nil {
		t.Fatalf("ListQueuedOffers() error = %v", err)
	}
	if len(offers) != 1 || offers[0].ID != keep.ID {
		t.Fatalf("offers = %+v, want only %v", offers, keep.ID)
	}

	// Removing an unknown draft is a no-op.
	if err := store.RemoveQueuedOffer(ctx, userID, uuid.New()); err != nil {
		t.Fatalf("RemoveQueuedOffer() unknown error = %v", err)
	}
}
