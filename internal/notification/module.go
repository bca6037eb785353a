// Package notification fans marketplace events out to external channels:
// WhatsApp messages through the gateway and transactional email over SMTP.
// Deliveries are best effort; a failed channel is logged, never retried
// into the publishing flow.
package notification

import (
	"context"
	"fmt"

	"marketplace_backend/internal/email"
	"marketplace_backend/internal/events"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

// Contact methods a request owner can choose for the post-accept handoff.
const (
	ContactMethodChat     = "chat"
	ContactMethodWhatsApp = "whatsapp"
	ContactMethodBoth     = "both"
)

// ProfileDirectory resolves display names and contact details.
type ProfileDirectory interface {
	DisplayNameFor(ctx context.Context, userID uuid.UUID) (string, error)
	ContactFor(ctx context.Context, userID uuid.UUID) (phone string, email string, err error)
}

// WhatsAppSender delivers WhatsApp messages through the gateway.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

// Module subscribes to domain events and dispatches notifications.
type Module struct {
	whatsapp WhatsAppSender
	email    email.Sender
	profiles ProfileDirectory
	log      *logger.Logger
}

// NewModule creates the notification module. Either channel may be nil,
// in which case that channel is skipped.
func NewModule(whatsapp WhatsAppSender, mail email.Sender, log *logger.Logger) *Module {
	return &Module{whatsapp: whatsapp, email: mail, log: log}
}

// SetProfileDirectory wires the profile lookup dependency.
func (m *Module) SetProfileDirectory(p ProfileDirectory) { m.profiles = p }

// Name returns the module name.
func (m *Module) Name() string { return "notification" }

// RegisterEventHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.OfferAccepted{}.EventName(), events.HandlerFunc(m.handleOfferAccepted))
	bus.Subscribe(events.OfferCreated{}.EventName(), events.HandlerFunc(m.handleOfferCreated))
	bus.Subscribe(events.MessageSent{}.EventName(), events.HandlerFunc(m.handleMessageSent))
	bus.Subscribe(events.GuestVerified{}.EventName(), events.HandlerFunc(m.handleGuestVerified))
}

// handleOfferAccepted tells the winning provider their offer was accepted.
// The request's contact method decides the channels: chat stays in-app,
// whatsapp goes to the gateway, both adds email when the provider has one.
func (m *Module) handleOfferAccepted(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.OfferAccepted)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	if evt.ContactMethod == ContactMethodChat {
		return nil
	}

	ownerName := m.displayName(ctx, evt.OwnerID)
	ownerPhone, _, err := m.contact(ctx, evt.OwnerID)
	if err != nil {
		m.log.Warn("resolving owner contact failed", "ownerId", evt.OwnerID, "error", err)
	}

	if evt.ProviderPhone != "" {
		msg := fmt.Sprintf("تم قبول عرضك على الطلب \"%s\". يمكنك التواصل مع %s على الرقم %s",
			evt.RequestTitle, ownerName, ownerPhone)
		m.sendWhatsApp(ctx, evt.ProviderPhone, msg)
	}

	if evt.ContactMethod == ContactMethodBoth && evt.ProviderEmail != "" && m.email != nil {
		if err := m.email.SendOfferAcceptedEmail(ctx, evt.ProviderEmail, evt.RequestTitle, ownerName, ownerPhone, evt.PriceCents); err != nil {
			m.log.Warn("offer accepted email failed", "offerId", evt.OfferID, "error", err)
		}
	}

	return nil
}

// handleOfferCreated emails the request owner about a fresh offer.
func (m *Module) handleOfferCreated(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.OfferCreated)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if m.email == nil || m.profiles == nil {
		return nil
	}

	_, ownerEmail, err := m.contact(ctx, evt.OwnerID)
	if err != nil || ownerEmail == "" {
		return nil
	}

	providerName := m.displayName(ctx, evt.ProviderID)
	if err := m.email.SendOfferSubmittedEmail(ctx, ownerEmail, evt.RequestTitle, providerName, evt.PriceCents); err != nil {
		m.log.Warn("offer submitted email failed", "offerId", evt.OfferID, "error", err)
	}
	return nil
}

// handleMessageSent nudges the recipient over WhatsApp.
func (m *Module) handleMessageSent(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.MessageSent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if m.whatsapp == nil || m.profiles == nil {
		return nil
	}

	phone, _, err := m.contact(ctx, evt.RecipientID)
	if err != nil || phone == "" {
		return nil
	}

	senderName := m.displayName(ctx, evt.SenderID)
	body := fmt.Sprintf("لديك رسالة جديدة من %s", senderName)
	if evt.HasVoice {
		body = fmt.Sprintf("لديك رسالة صوتية جديدة من %s", senderName)
	}
	m.sendWhatsApp(ctx, phone, body)
	return nil
}

// handleGuestVerified welcomes first-time users.
func (m *Module) handleGuestVerified(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.GuestVerified)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if !evt.NewUser {
		return nil
	}

	m.sendWhatsApp(ctx, evt.Phone, "أهلاً بك! تم تفعيل حسابك بنجاح، أكمل بياناتك للاستفادة من جميع الخدمات.")
	return nil
}

func (m *Module) sendWhatsApp(ctx context.Context, phone, message string) {
	if m.whatsapp == nil {
		return
	}
	if err := m.whatsapp.SendMessage(ctx, phone, message); err != nil {
		m.log.Warn("whatsapp notification failed", "phone", phone, "error", err)
	}
}

func (m *Module) displayName(ctx context.Context, userID uuid.UUID) string {
	if m.profiles == nil {
		return ""
	}
	name, err := m.profiles.DisplayNameFor(ctx, userID)
	if err != nil {
		return ""
	}
	return name
}

func (m *Module) contact(ctx context.Context, userID uuid.UUID) (string, string, error) {
	if m.profiles == nil {
		return "", "", nil
	}
	return m.profiles.ContactFor(ctx, userID)
}
