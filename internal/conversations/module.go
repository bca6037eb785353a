// Package conversations wires the chat module: repository, realtime hub,
// session-backed service and HTTP routes.
package conversations

import (
	"context"

	"marketplace_backend/internal/conversations/handler"
	"marketplace_backend/internal/conversations/realtime"
	"marketplace_backend/internal/conversations/repository"
	"marketplace_backend/internal/conversations/service"
	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the conversations feature.
type Module struct {
	svc     *service.Service
	hub     *realtime.Hub
	handler *handler.Handler
}

// NewModule constructs the conversations module with its dependencies.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, bus events.Bus, log *logger.Logger, cfg config.ConversationConfig) *Module {
	repo := repository.New(pool)
	hub := realtime.New(log)
	svc := service.New(repo, hub, bus, log, cfg)
	return &Module{
		svc:     svc,
		hub:     hub,
		handler: handler.New(svc, val),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "conversations" }

// RegisterEventHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.NegotiationStarted{}.EventName(), events.HandlerFunc(m.handleNegotiationStarted))
}

// handleNegotiationStarted reopens a previously closed conversation when
// negotiation resumes on its offer.
func (m *Module) handleNegotiationStarted(ctx context.Context, evt events.Event) error {
	started, ok := evt.(events.NegotiationStarted)
	if !ok {
		return nil
	}
	return m.svc.ReopenForOffer(ctx, started.RequestID, started.OfferID)
}

// Service exposes the conversation service for cross-module wiring.
func (m *Module) Service() *service.Service { return m.svc }

// Hub exposes the realtime hub for shutdown.
func (m *Module) Hub() *realtime.Hub { return m.hub }

// RegisterRoutes mounts the conversation routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/conversations")
	g.GET("", m.handler.List)
	g.POST("/open", m.handler.Open)
	g.GET("/:id/messages", m.handler.History)
	g.POST("/:id/messages", m.handler.Send)
	g.POST("/:id/read", m.handler.MarkRead)
	g.POST("/:id/close", m.handler.Close)
	g.POST("/:id/leave", m.handler.Leave)
	g.GET("/:id/voice-url", m.handler.VoiceURL)
	g.GET("/:id/stream", m.hub.Handler(m.authorizeStream))
}

func (m *Module) authorizeStream(c *gin.Context, conversationID uuid.UUID) (uuid.UUID, bool) {
	identity := httpkit.GetIdentity(c)
	if !identity.IsAuthenticated() {
		return uuid.Nil, false
	}
	if !m.svc.AuthorizeStream(c.Request.Context(), identity.UserID(), conversationID) {
		return uuid.Nil, false
	}
	return identity.UserID(), true
}

var _ apphttp.Module = (*Module)(nil)
