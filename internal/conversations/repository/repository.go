// Package repository provides persistence for conversations and messages.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conversation statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Conversation is the chat channel between a request owner and one provider,
// scoped to a single offer. At most one conversation exists per (request,
// offer) pair; get-or-create converges on it.
type Conversation struct {
	ID           uuid.UUID
	RequestID    uuid.UUID
	OfferID      uuid.UUID
	OwnerID      uuid.UUID
	ProviderID   uuid.UUID
	Status       string
	ClosedReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one entry in a conversation. VoiceFileKey is set for voice
// messages and points into object storage. ClientRef carries the sender's
// optimistic identifier so other devices can replace their local copy.
type Message struct {
	ID             uuid.UUID
	ClientRef      uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Body           string
	VoiceFileKey   *string
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// ConversationSummary is a conversation with inbox metadata.
type ConversationSummary struct {
	Conversation
	LastMessageAt   *time.Time
	LastMessageBody *string
	UnreadCount     int
}

const conversationNotFoundMsg = "conversation not found"

const conversationColumns = `id, request_id, offer_id, owner_id, provider_id, status, closed_reason, created_at, updated_at`

// Repository provides access to conversation and message rows.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new conversations repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.RequestID, &c.OfferID, &c.OwnerID, &c.ProviderID,
		&c.Status, &c.ClosedReason, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// GetOrCreate resolves the single conversation for a (request, offer) pair,
// creating it when absent. The unique index on (request_id, offer_id) makes
// concurrent opens converge on one row.
func (r *Repository) GetOrCreate(ctx context.Context, requestID, offerID, ownerID, providerID uuid.UUID) (Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx, `
		INSERT INTO conversations (request_id, offer_id, owner_id, provider_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id, offer_id) DO UPDATE SET updated_at = now()
		RETURNING `+conversationColumns,
		requestID, offerID, ownerID, providerID,
	))
	if err != nil {
		return Conversation{}, fmt.Errorf("get or create conversation: %w", err)
	}
	return c, nil
}

// GetByID retrieves a conversation by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, apperr.NotFound(conversationNotFoundMsg)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation by id: %w", err)
	}
	return c, nil
}

// ListForUser returns the user's conversations newest-activity-first, each
// with its last message and the user's unread count.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.request_id, c.offer_id, c.owner_id, c.provider_id,
		       c.status, c.closed_reason, c.created_at, c.updated_at,
		       lm.created_at, lm.body,
		       (SELECT count(*) FROM messages m
		        WHERE m.conversation_id = c.id AND m.sender_id != $1 AND m.read_at IS NULL)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT created_at, body FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC LIMIT 1
		) lm ON true
		WHERE c.owner_id = $1 OR c.provider_id = $1
		ORDER BY COALESCE(lm.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(
			&s.ID, &s.RequestID, &s.OfferID, &s.OwnerID, &s.ProviderID,
			&s.Status, &s.ClosedReason, &s.CreatedAt, &s.UpdatedAt,
			&s.LastMessageAt, &s.LastMessageBody, &s.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close marks a conversation closed with a reason. Closing an already-closed
// conversation is a no-op.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = 'closed', closed_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'open'`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return nil
}

// CloseForRequest closes every open conversation on a request except the one
// belonging to the winning offer. Returns the IDs of the closed conversations.
func (r *Repository) CloseForRequest(ctx context.Context, requestID, keepOfferID uuid.UUID, reason string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE conversations SET status = 'closed', closed_reason = $3, updated_at = now()
		WHERE request_id = $1 AND offer_id != $2 AND status = 'open'
		RETURNING id`,
		requestID, keepOfferID, reason,
	)
	if err != nil {
		return nil, fmt.Errorf("close conversations for request: %w", err)
	}
	defer rows.Close()

	var closed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan closed conversation: %w", err)
		}
		closed = append(closed, id)
	}
	return closed, rows.Err()
}

// ReopenForOffer reopens a closed conversation for a (request, offer) pair.
// Returns false when no closed conversation exists for the pair.
func (r *Repository) ReopenForOffer(ctx context.Context, requestID, offerID uuid.UUID) (Conversation, bool, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx, `
		UPDATE conversations SET status = 'open', closed_reason = NULL, updated_at = now()
		WHERE request_id = $1 AND offer_id = $2 AND status = 'closed'
		RETURNING `+conversationColumns,
		requestID, offerID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("reopen conversation: %w", err)
	}
	return c, true, nil
}

const messageColumns = `id, client_ref, conversation_id, sender_id, body, voice_file_key, created_at, read_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ClientRef, &m.ConversationID, &m.SenderID,
		&m.Body, &m.VoiceFileKey, &m.CreatedAt, &m.ReadAt,
	)
	return m, err
}

// InsertMessage persists a message. A repeated client_ref within the same
// conversation returns the already-stored row instead of inserting twice.
func (r *Repository) InsertMessage(ctx context.Context, m Message) (Message, error) {
	stored, err := scanMessage(r.pool.QueryRow(ctx, `
		INSERT INTO messages (client_ref, conversation_id, sender_id, body, voice_file_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, client_ref) DO UPDATE SET client_ref = EXCLUDED.client_ref
		RETURNING `+messageColumns,
		m.ClientRef, m.ConversationID, m.SenderID, m.Body, m.VoiceFileKey,
	))
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

// ListMessages returns a conversation's messages oldest first.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead marks every message from the counterpart as read.
func (r *Repository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages SET read_at = now()
		WHERE conversation_id = $1 AND sender_id != $2 AND read_at IS NULL`,
		conversationID, readerID,
	)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// UnreadCount returns how many counterpart messages the user has not read.
func (r *Repository) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM messages
		WHERE conversation_id = $1 AND sender_id != $2 AND read_at IS NULL`,
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}
