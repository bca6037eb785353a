// Package guestauth hosts the guest verification gate: the phone/OTP step
// machine, the Redis-backed session and queued-offer store, and the HTTP
// endpoints that drive them.
package guestauth

import (
	"context"

	"marketplace_backend/internal/events"
	"marketplace_backend/internal/guestauth/handler"
	"marketplace_backend/internal/guestauth/otpstore"
	"marketplace_backend/internal/guestauth/service"
	httpmodule "marketplace_backend/internal/http"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/redis/go-redis/v9"
)

// Module bundles the guest verification gate.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
	log     *logger.Logger
}

// Config carries the settings the gate needs.
type Config interface {
	config.GuestAuthConfig
	config.AuthConfig
}

// NewModule wires the guest auth module.
func NewModule(rdb *redis.Client, sender service.OTPSender, val *validator.Validator, bus events.Bus, log *logger.Logger, cfg Config) *Module {
	store := otpstore.New(rdb, cfg)
	svc := service.New(store, sender, bus, log, cfg)

	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
		log:     log,
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "guestauth" }

// Service exposes the service for cross-module wiring.
func (m *Module) Service() *service.Service { return m.svc }

// RegisterEventHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.ProfileOnboarded{}.EventName(), events.HandlerFunc(m.handleProfileOnboarded))
}

// handleProfileOnboarded drains any offers parked while onboarding was
// incomplete.
func (m *Module) handleProfileOnboarded(ctx context.Context, evt events.Event) error {
	onboarded, ok := evt.(events.ProfileOnboarded)
	if !ok {
		return nil
	}
	submitted, remaining, err := m.svc.RetryQueued(ctx, onboarded.ProfileID)
	if err != nil {
		return err
	}
	if submitted > 0 || remaining > 0 {
		m.log.Info("drained queued offers after onboarding",
			"userId", onboarded.ProfileID, "submitted", submitted, "remaining", remaining)
	}
	return nil
}

// RegisterRoutes mounts the verification endpoints. The flow itself is
// public; only the queued-offer retry requires an authenticated caller.
func (m *Module) RegisterRoutes(ctx *httpmodule.RouterContext) {
	public := ctx.V1.Group("/guest")
	public.Use(ctx.VerificationRateLimiter.RateLimit())
	{
		public.POST("/begin", m.handler.Begin)
		public.POST("/phone", m.handler.SubmitPhone)
		public.POST("/resend", m.handler.Resend)
		public.POST("/back", m.handler.Back)
		public.POST("/cancel", m.handler.Cancel)
		public.POST("/verify", m.handler.Verify)
	}

	protected := ctx.Protected.Group("/guest")
	{
		protected.POST("/offers/retry", m.handler.RetryQueued)
	}
}
