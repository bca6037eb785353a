// Package profiles wires the profiles module: repository, service and HTTP routes.
package profiles

import (
	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/internal/profiles/handler"
	"marketplace_backend/internal/profiles/repository"
	"marketplace_backend/internal/profiles/service"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the profiles feature.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule constructs the profiles module with its dependencies.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "profiles" }

// Service exposes the profile service for cross-module wiring.
func (m *Module) Service() *service.Service { return m.svc }

// RegisterRoutes mounts the profile routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/profiles")
	g.GET("/me", m.handler.Me)
	g.PUT("/me", m.handler.Update)
}

var _ apphttp.Module = (*Module)(nil)
