// Package negotiation implements the per-user conversation session: the
// lifecycle around opening a chat for an offer, loading its history, sending
// messages optimistically and folding in pushed updates. The session is pure
// coordination state; persistence and transport live behind the Store
// interface so the logic can be tested without a database.
package negotiation

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketplace_backend/internal/offers/domain"
	"marketplace_backend/internal/offers/reconcile"
	offersrepo "marketplace_backend/internal/offers/repository"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

// Phase is the lifecycle phase of a session.
type Phase string

const (
	PhaseClosed  Phase = "closed"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

// Conversation is the session's view of its chat channel.
type Conversation struct {
	ID         uuid.UUID
	RequestID  uuid.UUID
	OfferID    uuid.UUID
	OwnerID    uuid.UUID
	ProviderID uuid.UUID
	Closed     bool
}

// Message is the session's view of one chat entry. Pending marks an
// optimistic message not yet confirmed by the store; ClientRef ties the
// confirmed row back to the optimistic copy.
type Message struct {
	ID           uuid.UUID
	ClientRef    uuid.UUID
	SenderID     uuid.UUID
	Body         string
	VoiceFileKey string
	Pending      bool
	CreatedAt    time.Time
	ReadAt       *time.Time
}

// Store is the persistence boundary of a session.
type Store interface {
	// EnsureConversation resolves-or-creates the conversation for an offer.
	EnsureConversation(ctx context.Context, requestID, offerID, viewerID uuid.UUID) (Conversation, error)
	// History returns the conversation's messages oldest first.
	History(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	// Persist stores a message and returns the confirmed row.
	Persist(ctx context.Context, conversationID uuid.UUID, m Message) (Message, error)
	// MarkRead marks the counterpart's messages as read.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error
}

// Session is one user's live view of one conversation. All methods are safe
// for concurrent use.
type Session struct {
	mu     sync.Mutex
	phase  Phase
	gen    int
	userID uuid.UUID

	conv     Conversation
	messages []Message

	offer      offersrepo.Offer
	offerState *reconcile.State

	store       Store
	log         *logger.Logger
	loadTimeout time.Duration
}

// NewSession creates a session in the closed phase.
func NewSession(userID uuid.UUID, store Store, loadTimeout time.Duration, log *logger.Logger) *Session {
	return &Session{
		phase:       PhaseClosed,
		userID:      userID,
		offerState:  reconcile.NewState(),
		store:       store,
		log:         log,
		loadTimeout: loadTimeout,
	}
}

// Snapshot is the session state handed to callers.
type Snapshot struct {
	Phase        Phase
	Conversation Conversation
	Messages     []Message
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot returns a copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{Phase: s.phase, Conversation: s.conv, Messages: msgs}
}

// Open brings the session to ready for the given offer's conversation.
// Opening an already-open session for the same offer is idempotent and
// returns the current state. History loading is bounded by the session's
// load timeout; when it expires the session still becomes ready, with an
// empty history, rather than hanging the caller.
func (s *Session) Open(ctx context.Context, requestID, offerID uuid.UUID) (Snapshot, error) {
	s.mu.Lock()
	switch s.phase {
	case PhaseReady:
		if s.conv.RequestID == requestID && s.conv.OfferID == offerID {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, nil
		}
		s.mu.Unlock()
		return Snapshot{}, apperr.InvalidState("session is already open for another conversation")
	case PhaseLoading:
		s.mu.Unlock()
		return Snapshot{}, apperr.InvalidState("session is already loading")
	}
	s.gen++
	gen := s.gen
	s.phase = PhaseLoading
	s.mu.Unlock()

	conv, err := s.store.EnsureConversation(ctx, requestID, offerID, s.userID)
	if err != nil {
		s.abandon(gen)
		return Snapshot{}, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	history, err := s.store.History(loadCtx, conv.ID)
	cancel()
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			s.abandon(gen)
			return Snapshot{}, err
		}
		// Soft timeout: the chat opens empty instead of blocking.
		s.log.Warn("conversation history load timed out, opening empty",
			"conversationId", conv.ID)
		history = nil
	}

	s.mu.Lock()
	if s.gen != gen || s.phase != PhaseLoading {
		// Torn down while loading; discard the late result.
		s.mu.Unlock()
		return Snapshot{}, apperr.InvalidState("session was closed while loading")
	}
	s.conv = conv
	s.messages = history
	s.phase = PhaseReady
	snap := s.snapshotLocked()
	s.mu.Unlock()

	// Fire-and-forget: a failed mark-read never fails the open.
	go func() {
		readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.MarkRead(readCtx, conv.ID, s.userID); err != nil {
			s.log.Warn("marking conversation read failed", "conversationId", conv.ID, "error", err)
		}
	}()

	return snap, nil
}

// abandon returns the session to closed after a failed open, unless a newer
// generation took over meanwhile.
func (s *Session) abandon(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.phase == PhaseLoading {
		s.phase = PhaseClosed
	}
}

// Send persists a message optimistically: it appears in the session
// immediately with a pending mark, which the confirmed row replaces. When
// persistence fails the optimistic copy is removed and the error surfaces.
func (s *Session) Send(ctx context.Context, body, voiceFileKey string) (Message, error) {
	s.mu.Lock()
	if s.phase != PhaseReady {
		s.mu.Unlock()
		return Message{}, apperr.InvalidState("session is not ready")
	}
	if s.conv.Closed {
		s.mu.Unlock()
		return Message{}, apperr.InvalidState("conversation is closed")
	}
	clientRef := uuid.New()
	optimistic := Message{
		ID:           clientRef,
		ClientRef:    clientRef,
		SenderID:     s.userID,
		Body:         body,
		VoiceFileKey: voiceFileKey,
		Pending:      true,
		CreatedAt:    time.Now().UTC(),
	}
	s.messages = append(s.messages, optimistic)
	conversationID := s.conv.ID
	s.mu.Unlock()

	confirmed, err := s.store.Persist(ctx, conversationID, optimistic)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.removeByClientRefLocked(clientRef)
		return Message{}, err
	}
	confirmed.ClientRef = clientRef
	s.settleLocked(confirmed)
	return confirmed, nil
}

// ApplyInsert folds a pushed new message into the session. A message already
// present by ID is ignored; one matching a pending optimistic copy replaces
// it; anything else is appended.
func (s *Session) ApplyInsert(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return
	}
	s.settleLocked(m)
}

// ApplyUpdate folds a pushed message update into the session. Unknown IDs
// are ignored rather than appended.
func (s *Session) ApplyUpdate(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return
	}
	for i, existing := range s.messages {
		if existing.ID == m.ID {
			s.messages[i] = m
			return
		}
	}
}

// ApplyConversationClosed marks the conversation closed in place. The
// session stays ready so the history remains readable; sends are refused.
func (s *Session) ApplyConversationClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Closed = true
}

func (s *Session) settleLocked(m Message) {
	for i, existing := range s.messages {
		if existing.ID == m.ID {
			s.messages[i] = m
			return
		}
		if m.ClientRef != uuid.Nil && existing.Pending && existing.ClientRef == m.ClientRef {
			s.messages[i] = m
			return
		}
	}
	s.messages = append(s.messages, m)
}

func (s *Session) removeByClientRefLocked(clientRef uuid.UUID) {
	for i, existing := range s.messages {
		if existing.ClientRef == clientRef {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// MarkOfferAction records an optimistic offer status ahead of the server's
// confirmation and returns a rollback token for the failure path.
func (s *Session) MarkOfferAction(status domain.Status) *domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offerState.SetOverride(s.conv.OfferID, status)
}

// RollbackOfferAction undoes a failed optimistic offer action.
func (s *Session) RollbackOfferAction(prev *domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerState.Rollback(s.conv.OfferID, prev)
}

// ObserveOffer feeds an authoritative offer record into the session.
func (s *Session) ObserveOffer(o offersrepo.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerState.Observe(o)
	s.offer = o
}

// EffectiveOfferStatus returns the offer status the session should display,
// honoring any optimistic override that is still pending.
func (s *Session) EffectiveOfferStatus() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offerState.Effective(s.offer)
}

// Close tears the session down. Closing a closed session is a no-op; a close
// racing an in-flight open wins, and the late load result is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.phase = PhaseClosed
	s.messages = nil
}
