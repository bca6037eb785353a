// Package offers wires the offer lifecycle module.
package offers

import (
	"context"

	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/internal/offers/handler"
	"marketplace_backend/internal/offers/outbox"
	"marketplace_backend/internal/offers/repository"
	"marketplace_backend/internal/offers/service"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the offers feature.
type Module struct {
	svc     *service.Service
	outbox  *outbox.Repository
	handler *handler.Handler
}

// NewModule constructs the offers module with its dependencies.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, bus events.Bus, log *logger.Logger, uploads handler.AttachmentUploader) *Module {
	repo := repository.New(pool)
	ob := outbox.New(pool)
	svc := service.New(repo, ob, bus, log)
	return &Module{
		svc:     svc,
		outbox:  ob,
		handler: handler.New(svc, val, uploads),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "offers" }

// Service exposes the offer service for cross-module wiring.
func (m *Module) Service() *service.Service { return m.svc }

// Outbox exposes the cleanup outbox for the worker.
func (m *Module) Outbox() *outbox.Repository { return m.outbox }

// RegisterEventHandlers subscribes the module to scheduler retry events.
func (m *Module) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.AcceptanceCleanupDue{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, evt events.Event) error {
			due, ok := evt.(events.AcceptanceCleanupDue)
			if !ok {
				return nil
			}
			return m.svc.RunCleanup(ctx, due.OutboxID)
		}))
}

// RegisterRoutes mounts the offer routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/offers")
	g.POST("", m.handler.Create)
	g.GET("/mine", m.handler.ListMine)
	g.GET("/:id", m.handler.Get)
	g.POST("/:id/negotiate", m.handler.StartNegotiation)
	g.POST("/:id/accept", m.handler.Accept)
	g.POST("/:id/cancel", m.handler.Cancel)
	g.POST("/:id/complete", m.handler.Complete)
}

var _ apphttp.Module = (*Module)(nil)
