// Package service coordinates conversations: session lifecycle, message
// persistence, realtime fan-out and acceptance cleanup.
package service

import (
	"context"
	"mime/multipart"

	"marketplace_backend/internal/adapters/storage"
	"marketplace_backend/internal/conversations/realtime"
	"marketplace_backend/internal/conversations/repository"
	"marketplace_backend/internal/conversations/transport"
	"marketplace_backend/internal/events"
	"marketplace_backend/internal/negotiation"
	offersservice "marketplace_backend/internal/offers/service"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

// OfferDirectory resolves the parties behind an offer.
type OfferDirectory interface {
	Participants(ctx context.Context, offerID uuid.UUID) (offersservice.ParticipantInfo, error)
}

// VoiceStorage stores and serves voice message audio.
type VoiceStorage interface {
	UploadVoiceMessage(ctx context.Context, conversationID, senderID uuid.UUID, fh *multipart.FileHeader) (string, error)
	VoiceDownloadURL(ctx context.Context, fileKey string) (*storage.PresignedURL, error)
}

// Service coordinates conversation operations.
type Service struct {
	repo     *repository.Repository
	hub      *realtime.Hub
	bus      events.Bus
	log      *logger.Logger
	offers   OfferDirectory
	voice    VoiceStorage
	sessions *negotiation.Manager
}

// New creates a new conversations service. The session manager is built on
// top of the repository through the sessionStore adapter.
func New(repo *repository.Repository, hub *realtime.Hub, bus events.Bus, log *logger.Logger, cfg config.ConversationConfig) *Service {
	s := &Service{
		repo: repo,
		hub:  hub,
		bus:  bus,
		log:  log,
	}
	s.sessions = negotiation.NewManager(&sessionStore{svc: s}, cfg.GetConversationLoadTimeout(), log)
	return s
}

// SetOfferDirectory wires the offer lookup dependency.
func (s *Service) SetOfferDirectory(d OfferDirectory) { s.offers = d }

// SetVoiceStorage wires the voice message storage dependency.
func (s *Service) SetVoiceStorage(v VoiceStorage) { s.voice = v }

// Open brings the viewer's session for an offer to ready and returns its
// state. The underlying conversation is created on first open and resolved
// on every later one.
func (s *Service) Open(ctx context.Context, viewerID uuid.UUID, req transport.OpenConversationRequest) (transport.SessionResponse, error) {
	info, err := s.offers.Participants(ctx, req.OfferID)
	if err != nil {
		return transport.SessionResponse{}, err
	}
	if viewerID != info.OwnerID && viewerID != info.ProviderID {
		return transport.SessionResponse{}, apperr.Forbidden("you are not a participant of this offer")
	}

	session := s.sessions.Session(viewerID, info.RequestID, req.OfferID)
	snap, err := session.Open(ctx, info.RequestID, req.OfferID)
	if err != nil {
		return transport.SessionResponse{}, err
	}
	s.sessions.Track(snap.Conversation.ID, session)

	return toSessionResponse(snap), nil
}

// Leave tears down the viewer's session for an offer. The conversation
// itself stays open for the counterpart.
func (s *Service) Leave(ctx context.Context, viewerID uuid.UUID, conversationID uuid.UUID) error {
	conv, err := s.participantConversation(ctx, conversationID, viewerID)
	if err != nil {
		return err
	}
	s.sessions.CloseUserSession(viewerID, conv.RequestID, conv.OfferID)
	return nil
}

// Send persists a message through the viewer's session and fans it out. For
// voice messages the upload runs first; an upload failure aborts the send
// entirely, the message is never stored without its audio.
func (s *Service) Send(ctx context.Context, viewerID, conversationID uuid.UUID, body string, voice *multipart.FileHeader) (transport.MessageResponse, error) {
	conv, err := s.participantConversation(ctx, conversationID, viewerID)
	if err != nil {
		return transport.MessageResponse{}, err
	}
	if conv.Status != repository.StatusOpen {
		return transport.MessageResponse{}, apperr.InvalidState("conversation is closed")
	}

	voiceKey := ""
	if voice != nil {
		if s.voice == nil {
			return transport.MessageResponse{}, apperr.Unavailable("voice messages are not available")
		}
		voiceKey, err = s.voice.UploadVoiceMessage(ctx, conversationID, viewerID, voice)
		if err != nil {
			return transport.MessageResponse{}, err
		}
	}

	session := s.sessions.Session(viewerID, conv.RequestID, conv.OfferID)
	if session.Phase() != negotiation.PhaseReady {
		if _, err := session.Open(ctx, conv.RequestID, conv.OfferID); err != nil {
			return transport.MessageResponse{}, err
		}
		s.sessions.Track(conversationID, session)
	}

	confirmed, err := session.Send(ctx, body, voiceKey)
	if err != nil {
		return transport.MessageResponse{}, err
	}

	resp := toMessageResponse(conversationID, confirmed)

	s.sessions.DispatchInsert(conversationID, confirmed)
	s.hub.Publish(realtime.Event{
		Type:           realtime.EventMessageInserted,
		ConversationID: conversationID,
		Data:           resp,
	}, viewerID)

	recipient := conv.OwnerID
	if viewerID == conv.OwnerID {
		recipient = conv.ProviderID
	}
	s.publish(ctx, events.MessageSent{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      confirmed.ID,
		ConversationID: conversationID,
		SenderID:       viewerID,
		RecipientID:    recipient,
		HasVoice:       voiceKey != "",
	})

	return resp, nil
}

// History returns a conversation's messages for a participant.
func (s *Service) History(ctx context.Context, viewerID, conversationID uuid.UUID, limit int) ([]transport.MessageResponse, error) {
	if _, err := s.participantConversation(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]transport.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toStoredMessageResponse(m))
	}
	return out, nil
}

// List returns the viewer's conversations with inbox metadata.
func (s *Service) List(ctx context.Context, viewerID uuid.UUID) ([]transport.ConversationSummaryResponse, error) {
	summaries, err := s.repo.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ConversationSummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, transport.ConversationSummaryResponse{
			ConversationResponse: toConversationResponse(sum.Conversation),
			LastMessageAt:        sum.LastMessageAt,
			LastMessageBody:      sum.LastMessageBody,
			UnreadCount:          sum.UnreadCount,
		})
	}
	return out, nil
}

// MarkRead marks the counterpart's messages read and pushes the update.
func (s *Service) MarkRead(ctx context.Context, viewerID, conversationID uuid.UUID) error {
	if _, err := s.participantConversation(ctx, conversationID, viewerID); err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, conversationID, viewerID); err != nil {
		return err
	}
	s.hub.Publish(realtime.Event{
		Type:           realtime.EventMessageUpdated,
		ConversationID: conversationID,
		Data:           map[string]any{"readBy": viewerID},
	}, viewerID)
	return nil
}

// Close closes a conversation on behalf of a participant.
func (s *Service) Close(ctx context.Context, viewerID, conversationID uuid.UUID) error {
	conv, err := s.participantConversation(ctx, conversationID, viewerID)
	if err != nil {
		return err
	}
	const reason = "participant_closed"
	if err := s.repo.Close(ctx, conversationID, reason); err != nil {
		return err
	}
	s.notifyClosed(ctx, conv, reason)
	return nil
}

// CloseForRequest closes every open conversation on a request except the
// winning offer's. Implements the offers module's acceptance cleanup hook.
func (s *Service) CloseForRequest(ctx context.Context, requestID, keepOfferID uuid.UUID, reason string) error {
	closed, err := s.repo.CloseForRequest(ctx, requestID, keepOfferID, reason)
	if err != nil {
		return err
	}
	for _, id := range closed {
		conv, err := s.repo.GetByID(ctx, id)
		if err != nil {
			s.log.Error("loading closed conversation failed", "conversationId", id, "error", err)
			continue
		}
		s.notifyClosed(ctx, conv, reason)
	}
	return nil
}

// VoiceURL returns a presigned download URL for a voice message file.
func (s *Service) VoiceURL(ctx context.Context, viewerID, conversationID uuid.UUID, fileKey string) (transport.VoiceURLResponse, error) {
	if _, err := s.participantConversation(ctx, conversationID, viewerID); err != nil {
		return transport.VoiceURLResponse{}, err
	}
	if s.voice == nil {
		return transport.VoiceURLResponse{}, apperr.Unavailable("voice messages are not available")
	}
	presigned, err := s.voice.VoiceDownloadURL(ctx, fileKey)
	if err != nil {
		return transport.VoiceURLResponse{}, apperr.Unavailable("voice message is not retrievable right now")
	}
	return transport.VoiceURLResponse{URL: presigned.URL, ExpiresAt: presigned.ExpiresAt}, nil
}

// AuthorizeStream reports whether a user may watch a conversation's stream.
func (s *Service) AuthorizeStream(ctx context.Context, viewerID, conversationID uuid.UUID) bool {
	_, err := s.participantConversation(ctx, conversationID, viewerID)
	return err == nil
}

// ReopenForOffer reopens the closed conversation of a (request, offer) pair
// when negotiation resumes on that offer. Absent or already-open
// conversations are left alone.
func (s *Service) ReopenForOffer(ctx context.Context, requestID, offerID uuid.UUID) error {
	conv, reopened, err := s.repo.ReopenForOffer(ctx, requestID, offerID)
	if err != nil {
		return err
	}
	if !reopened {
		return nil
	}
	s.log.Info("conversation reopened", "conversationId", conv.ID, "offerId", offerID)
	s.hub.Broadcast(realtime.Event{
		Type:           realtime.EventConversationOpened,
		ConversationID: conv.ID,
	})
	return nil
}

func (s *Service) notifyClosed(ctx context.Context, conv repository.Conversation, reason string) {
	s.sessions.DispatchClosed(conv.ID)
	s.hub.Broadcast(realtime.Event{
		Type:           realtime.EventConversationClosed,
		ConversationID: conv.ID,
		Data:           map[string]any{"reason": reason},
	})
	s.publish(ctx, events.ConversationClosed{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		RequestID:      conv.RequestID,
		Reason:         reason,
	})
}

func (s *Service) participantConversation(ctx context.Context, conversationID, viewerID uuid.UUID) (repository.Conversation, error) {
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return repository.Conversation{}, err
	}
	if viewerID != conv.OwnerID && viewerID != conv.ProviderID {
		return repository.Conversation{}, apperr.Forbidden("you are not a participant of this conversation")
	}
	return conv, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, evt)
}

func toConversationResponse(c repository.Conversation) transport.ConversationResponse {
	return transport.ConversationResponse{
		ID:           c.ID,
		RequestID:    c.RequestID,
		OfferID:      c.OfferID,
		OwnerID:      c.OwnerID,
		ProviderID:   c.ProviderID,
		Status:       c.Status,
		ClosedReason: c.ClosedReason,
		CreatedAt:    c.CreatedAt,
	}
}

func toSessionResponse(snap negotiation.Snapshot) transport.SessionResponse {
	msgs := make([]transport.MessageResponse, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		msgs = append(msgs, toMessageResponse(snap.Conversation.ID, m))
	}
	status := repository.StatusOpen
	if snap.Conversation.Closed {
		status = repository.StatusClosed
	}
	return transport.SessionResponse{
		Phase: string(snap.Phase),
		Conversation: transport.ConversationResponse{
			ID:         snap.Conversation.ID,
			RequestID:  snap.Conversation.RequestID,
			OfferID:    snap.Conversation.OfferID,
			OwnerID:    snap.Conversation.OwnerID,
			ProviderID: snap.Conversation.ProviderID,
			Status:     status,
		},
		Messages: msgs,
	}
}

func toMessageResponse(conversationID uuid.UUID, m negotiation.Message) transport.MessageResponse {
	var voiceKey *string
	if m.VoiceFileKey != "" {
		k := m.VoiceFileKey
		voiceKey = &k
	}
	return transport.MessageResponse{
		ID:             m.ID,
		ClientRef:      m.ClientRef,
		ConversationID: conversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		VoiceFileKey:   voiceKey,
		Pending:        m.Pending,
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
	}
}

func toStoredMessageResponse(m repository.Message) transport.MessageResponse {
	return transport.MessageResponse{
		ID:             m.ID,
		ClientRef:      m.ClientRef,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		VoiceFileKey:   m.VoiceFileKey,
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
	}
}
