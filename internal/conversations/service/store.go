package service

import (
	"context"

	"marketplace_backend/internal/conversations/repository"
	"marketplace_backend/internal/negotiation"
	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
)

// sessionStore adapts the conversations repository to the negotiation
// session's persistence boundary.
type sessionStore struct {
	svc *Service
}

func (a *sessionStore) EnsureConversation(ctx context.Context, requestID, offerID, viewerID uuid.UUID) (negotiation.Conversation, error) {
	info, err := a.svc.offers.Participants(ctx, offerID)
	if err != nil {
		return negotiation.Conversation{}, err
	}
	if viewerID != info.OwnerID && viewerID != info.ProviderID {
		return negotiation.Conversation{}, apperr.Forbidden("you are not a participant of this offer")
	}

	conv, err := a.svc.repo.GetOrCreate(ctx, info.RequestID, offerID, info.OwnerID, info.ProviderID)
	if err != nil {
		return negotiation.Conversation{}, err
	}
	return negotiation.Conversation{
		ID:         conv.ID,
		RequestID:  conv.RequestID,
		OfferID:    conv.OfferID,
		OwnerID:    conv.OwnerID,
		ProviderID: conv.ProviderID,
		Closed:     conv.Status == repository.StatusClosed,
	}, nil
}

func (a *sessionStore) History(ctx context.Context, conversationID uuid.UUID) ([]negotiation.Message, error) {
	msgs, err := a.svc.repo.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]negotiation.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toSessionMessage(m))
	}
	return out, nil
}

func (a *sessionStore) Persist(ctx context.Context, conversationID uuid.UUID, m negotiation.Message) (negotiation.Message, error) {
	var voiceKey *string
	if m.VoiceFileKey != "" {
		k := m.VoiceFileKey
		voiceKey = &k
	}
	stored, err := a.svc.repo.InsertMessage(ctx, repository.Message{
		ClientRef:      m.ClientRef,
		ConversationID: conversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		VoiceFileKey:   voiceKey,
	})
	if err != nil {
		return negotiation.Message{}, err
	}
	return toSessionMessage(stored), nil
}

func (a *sessionStore) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	return a.svc.repo.MarkRead(ctx, conversationID, readerID)
}

func toSessionMessage(m repository.Message) negotiation.Message {
	voiceKey := ""
	if m.VoiceFileKey != nil {
		voiceKey = *m.VoiceFileKey
	}
	return negotiation.Message{
		ID:           m.ID,
		ClientRef:    m.ClientRef,
		SenderID:     m.SenderID,
		Body:         m.Body,
		VoiceFileKey: voiceKey,
		Pending:      false,
		CreatedAt:    m.CreatedAt,
		ReadAt:       m.ReadAt,
	}
}
