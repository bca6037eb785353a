package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace_backend/internal/offers/domain"
	offersrepo "marketplace_backend/internal/offers/repository"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu          sync.Mutex
	conv        Conversation
	ensureErr   error
	ensureCalls int

	history     []Message
	historyErr  error
	historyHold chan struct{}

	persistErr error
	persisted  []Message

	markReadCalls chan uuid.UUID
}

func newFakeStore() *fakeStore {
	convID := uuid.New()
	return &fakeStore{
		conv:          Conversation{ID: convID, RequestID: uuid.New(), OfferID: uuid.New(), OwnerID: uuid.New(), ProviderID: uuid.New()},
		markReadCalls: make(chan uuid.UUID, 8),
	}
}

func (f *fakeStore) EnsureConversation(ctx context.Context, requestID, offerID, viewerID uuid.UUID) (Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return Conversation{}, f.ensureErr
	}
	c := f.conv
	c.RequestID = requestID
	c.OfferID = offerID
	return c, nil
}

func (f *fakeStore) History(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	if f.historyHold != nil {
		select {
		case <-f.historyHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeStore) Persist(ctx context.Context, conversationID uuid.UUID, m Message) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return Message{}, f.persistErr
	}
	confirmed := m
	confirmed.ID = uuid.New()
	confirmed.Pending = false
	confirmed.CreatedAt = time.Now().UTC()
	f.persisted = append(f.persisted, confirmed)
	return confirmed, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	select {
	case f.markReadCalls <- conversationID:
	default:
	}
	return nil
}

func testSession(store Store) *Session {
	return NewSession(uuid.New(), store, 50*time.Millisecond, logger.New("test"))
}

func TestOpenLoadsHistoryAndBecomesReady(t *testing.T) {
	store := newFakeStore()
	store.history = []Message{
		{ID: uuid.New(), Body: "first", CreatedAt: time.Now().UTC()},
		{ID: uuid.New(), Body: "second", CreatedAt: time.Now().UTC()},
	}
	s := testSession(store)

	snap, err := s.Open(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Phase != PhaseReady {
		t.Fatalf("phase = %v, want %v", snap.Phase, PhaseReady)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(snap.Messages))
	}

	select {
	case id := <-store.markReadCalls:
		if id != store.conv.ID {
			t.Fatalf("marked conversation %v read, want %v", id, store.conv.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected mark-read after open")
	}
}

func TestOpenIsIdempotentForSameOffer(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	requestID, offerID := uuid.New(), uuid.New()

	if _, err := s.Open(context.Background(), requestID, offerID); err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	snap, err := s.Open(context.Background(), requestID, offerID)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if snap.Phase != PhaseReady {
		t.Fatalf("phase = %v, want %v", snap.Phase, PhaseReady)
	}
	if store.ensureCalls != 1 {
		t.Fatalf("ensureCalls = %d, want 1", store.ensureCalls)
	}
}

func TestOpenForDifferentOfferWhileReadyIsRefused(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)

	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, err := s.Open(context.Background(), uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("error = %v, want invalid state", err)
	}
}

func TestOpenHistoryTimeoutOpensEmpty(t *testing.T) {
	store := newFakeStore()
	store.historyHold = make(chan struct{}) // never released: load must time out
	s := testSession(store)

	snap, err := s.Open(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Phase != PhaseReady {
		t.Fatalf("phase = %v, want %v", snap.Phase, PhaseReady)
	}
	if len(snap.Messages) != 0 {
		t.Fatalf("len(messages) = %d, want 0 after timeout", len(snap.Messages))
	}
}

func TestOpenFailureReturnsToClosed(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("connection refused")
	s := testSession(store)

	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err == nil {
		t.Fatal("expected error from Open()")
	}
	if got := s.Phase(); got != PhaseClosed {
		t.Fatalf("phase = %v, want %v", got, PhaseClosed)
	}
}

func TestCloseDuringLoadDiscardsLateResult(t *testing.T) {
	store := newFakeStore()
	store.historyHold = make(chan struct{})
	s := NewSession(uuid.New(), store, time.Minute, logger.New("test"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Open(context.Background(), uuid.New(), uuid.New())
		done <- err
	}()

	// Wait for the load to start, then tear the session down underneath it.
	for s.Phase() != PhaseLoading {
		time.Sleep(time.Millisecond)
	}
	s.Close()
	close(store.historyHold)

	err := <-done
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("error = %v, want invalid state", err)
	}
	if got := s.Phase(); got != PhaseClosed {
		t.Fatalf("phase = %v, want %v", got, PhaseClosed)
	}
}

func TestSendConfirmsOptimisticMessage(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sent, err := s.Send(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent.Pending {
		t.Fatal("confirmed message still marked pending")
	}

	snap := s.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(snap.Messages))
	}
	if snap.Messages[0].ID != sent.ID {
		t.Fatalf("message ID = %v, want confirmed %v", snap.Messages[0].ID, sent.ID)
	}
}

func TestSendFailureRemovesOptimisticMessage(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store.persistErr = errors.New("write failed")

	if _, err := s.Send(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error from Send()")
	}
	if snap := s.Snapshot(); len(snap.Messages) != 0 {
		t.Fatalf("len(messages) = %d, want 0 after failed send", len(snap.Messages))
	}
}

func TestSendOnClosedConversationIsRefused(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.ApplyConversationClosed()

	_, err := s.Send(context.Background(), "hello", "")
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("error = %v, want invalid state", err)
	}
}

func TestApplyInsertDeduplicates(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	msg := Message{ID: uuid.New(), Body: "from counterpart", CreatedAt: time.Now().UTC()}
	s.ApplyInsert(msg)
	s.ApplyInsert(msg) // duplicate push

	if snap := s.Snapshot(); len(snap.Messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1 after duplicate insert", len(snap.Messages))
	}
}

func TestApplyInsertReplacesOptimisticCopy(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sent, err := s.Send(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// The same message arrives again over the push channel.
	s.ApplyInsert(Message{ID: sent.ID, ClientRef: sent.ClientRef, Body: "hello"})

	if snap := s.Snapshot(); len(snap.Messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(snap.Messages))
	}
}

func TestApplyUpdateIgnoresUnknownMessage(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	if _, err := s.Open(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	s.ApplyUpdate(Message{ID: uuid.New(), Body: "never seen"})

	if snap := s.Snapshot(); len(snap.Messages) != 0 {
		t.Fatalf("len(messages) = %d, want 0", len(snap.Messages))
	}
}

func TestOptimisticOfferStatusOverride(t *testing.T) {
	store := newFakeStore()
	s := testSession(store)
	requestID, offerID := uuid.New(), uuid.New()
	if _, err := s.Open(context.Background(), requestID, offerID); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	s.ObserveOffer(offersrepo.Offer{ID: offerID, Status: domain.StatusPending})

	prev := s.MarkOfferAction(domain.StatusNegotiating)
	if got := s.EffectiveOfferStatus(); got != domain.StatusNegotiating {
		t.Fatalf("effective status = %v, want %v", got, domain.StatusNegotiating)
	}

	// The action fails; the override rolls back to the observed record.
	s.RollbackOfferAction(prev)
	if got := s.EffectiveOfferStatus(); got != domain.StatusPending {
		t.Fatalf("effective status = %v, want %v", got, domain.StatusPending)
	}
}
