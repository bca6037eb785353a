package negotiation

import (
	"sync"
	"time"

	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

type sessionKey struct {
	userID    uuid.UUID
	requestID uuid.UUID
	offerID   uuid.UUID
}

// Manager holds the live sessions, one per user per conversation, and routes
// pushed events to them.
type Manager struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
	byConv   map[uuid.UUID][]*Session

	store       Store
	loadTimeout time.Duration
	log         *logger.Logger
}

// NewManager creates an empty session manager.
func NewManager(store Store, loadTimeout time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		sessions:    make(map[sessionKey]*Session),
		byConv:      make(map[uuid.UUID][]*Session),
		store:       store,
		loadTimeout: loadTimeout,
		log:         log,
	}
}

// Session returns the user's session for an offer's conversation, creating
// it closed when absent.
func (m *Manager) Session(userID, requestID, offerID uuid.UUID) *Session {
	key := sessionKey{userID: userID, requestID: requestID, offerID: offerID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := NewSession(userID, m.store, m.loadTimeout, m.log)
	m.sessions[key] = s
	return s
}

// Track associates a ready session with its conversation so pushed events
// reach it. Called after a successful Open.
func (m *Manager) Track(conversationID uuid.UUID, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byConv[conversationID] {
		if existing == s {
			return
		}
	}
	m.byConv[conversationID] = append(m.byConv[conversationID], s)
}

// DispatchInsert folds a pushed new message into every session watching the
// conversation.
func (m *Manager) DispatchInsert(conversationID uuid.UUID, msg Message) {
	for _, s := range m.watching(conversationID) {
		s.ApplyInsert(msg)
	}
}

// DispatchUpdate folds a pushed message update into watching sessions.
func (m *Manager) DispatchUpdate(conversationID uuid.UUID, msg Message) {
	for _, s := range m.watching(conversationID) {
		s.ApplyUpdate(msg)
	}
}

// DispatchClosed marks the conversation closed in watching sessions.
func (m *Manager) DispatchClosed(conversationID uuid.UUID) {
	for _, s := range m.watching(conversationID) {
		s.ApplyConversationClosed()
	}
}

func (m *Manager) watching(conversationID uuid.UUID) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, len(m.byConv[conversationID]))
	copy(out, m.byConv[conversationID])
	return out
}

// CloseUserSession tears down one user's session for an offer.
func (m *Manager) CloseUserSession(userID, requestID, offerID uuid.UUID) {
	key := sessionKey{userID: userID, requestID: requestID, offerID: offerID}

	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		m.untrack(s)
	}
}

func (m *Manager) untrack(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for convID, sessions := range m.byConv {
		for i, existing := range sessions {
			if existing == s {
				m.byConv[convID] = append(sessions[:i], sessions[i+1:]...)
				break
			}
		}
		if len(m.byConv[convID]) == 0 {
			delete(m.byConv, convID)
		}
	}
}
