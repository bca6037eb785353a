// Package realtime provides Server-Sent Events streams for conversations.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"marketplace_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different kinds of conversation stream events.
type EventType string

const (
	EventMessageInserted    EventType = "message_inserted"
	EventMessageUpdated     EventType = "message_updated"
	EventConversationClosed EventType = "conversation_closed"
	EventConversationOpened EventType = "conversation_opened"
	EventOfferUpdated       EventType = "offer_updated"
)

// Event is one SSE payload pushed to conversation subscribers.
type Event struct {
	Type           EventType   `json:"type"`
	ConversationID uuid.UUID   `json:"conversationId"`
	Data           interface{} `json:"data,omitempty"`
}

// client is one connected subscriber on a conversation.
type client struct {
	userID         uuid.UUID
	conversationID uuid.UUID
	events         chan Event
	closeOnce      sync.Once
}

// closeEvents closes the event channel exactly once, so hub shutdown and the
// serve loop's teardown cannot race into a double close.
func (c *client) closeEvents() {
	c.closeOnce.Do(func() { close(c.events) })
}

// Hub manages conversation subscriptions and event fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // conversationID -> clients
	log     *logger.Logger
}

// New creates a new realtime hub.
func New(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.conversationID] = append(h.clients[c.conversationID], c)
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[c.conversationID]
	for i, cl := range clients {
		if cl == c {
			h.clients[c.conversationID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.clients[c.conversationID]) == 0 {
		delete(h.clients, c.conversationID)
	}

	c.closeEvents()
}

// Publish pushes an event to every subscriber of a conversation, optionally
// excluding one user (typically the sender, who already has the message).
func (h *Hub) Publish(event Event, excludeUserID uuid.UUID) {
	h.mu.RLock()
	clients := h.clients[event.ConversationID]
	h.mu.RUnlock()

	for _, c := range clients {
		if c.userID == excludeUserID {
			continue
		}
		select {
		case c.events <- event:
		default:
			h.log.Warn("conversation event buffer full, dropping event",
				"conversationId", event.ConversationID, "userId", c.userID)
		}
	}
}

// Broadcast pushes an event to every subscriber including the originator.
func (h *Hub) Broadcast(event Event) {
	h.Publish(event, uuid.Nil)
}

// Handler returns a Gin handler that streams conversation events over SSE.
// authorize decides whether the caller may watch the conversation.
func (h *Hub) Handler(authorize func(c *gin.Context, conversationID uuid.UUID) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
			return
		}

		userID, ok := authorize(c, conversationID)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID:         userID,
			conversationID: conversationID,
			events:         make(chan Event, 32),
		}
		h.addClient(cl)
		defer h.removeClient(cl)

		c.SSEvent("connected", gin.H{"conversationId": conversationID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the hub and disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for _, c := range clients {
			c.closeEvents()
		}
	}
	h.clients = make(map[uuid.UUID][]*client)
}
