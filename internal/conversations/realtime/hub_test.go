package realtime

import (
	"testing"

	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

func newHubClient(conversationID uuid.UUID) *client {
	return &client{
		userID:         uuid.New(),
		conversationID: conversationID,
		events:         make(chan Event, 4),
	}
}

func TestHubCloseAfterClientTeardown(t *testing.T) {
	h := New(logger.New("test"))
	conversationID := uuid.New()

	cl := newHubClient(conversationID)
	h.addClient(cl)

	// The serve loop tears its client down, then the hub shuts down. Both
	// paths close the same channel; neither may panic.
	h.removeClient(cl)
	h.Close()
}

func TestHubClientTeardownAfterClose(t *testing.T) {
	h := New(logger.New("test"))
	conversationID := uuid.New()

	cl := newHubClient(conversationID)
	h.addClient(cl)

	h.Close()
	h.removeClient(cl)

	if _, open := <-cl.events; open {
		t.Fatal("events channel should be closed after teardown")
	}
}

func TestHubPublishSkipsExcludedUser(t *testing.T) {
	h := New(logger.New("test"))
	conversationID := uuid.New()

	sender := newHubClient(conversationID)
	recipient := newHubClient(conversationID)
	h.addClient(sender)
	h.addClient(recipient)

	h.Publish(Event{Type: EventMessageInserted, ConversationID: conversationID}, sender.userID)

	if len(recipient.events) != 1 {
		t.Fatalf("recipient buffered %d events, want 1", len(recipient.events))
	}
	if len(sender.events) != 0 {
		t.Fatalf("sender buffered %d events, want 0", len(sender.events))
	}
}
