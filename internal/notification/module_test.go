package notification

import (
	"context"
	"strings"
	"testing"

	"marketplace_backend/internal/events"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

type sentWhatsApp struct {
	phone   string
	message string
}

type fakeWhatsApp struct {
	sent []sentWhatsApp
}

func (f *fakeWhatsApp) SendMessage(_ context.Context, phone, message string) error {
	f.sent = append(f.sent, sentWhatsApp{phone: phone, message: message})
	return nil
}

type sentEmail struct {
	to       string
	template string
}

type fakeEmail struct {
	sent []sentEmail
}

func (f *fakeEmail) SendOfferAcceptedEmail(_ context.Context, toEmail, _, _, _ string, _ int64) error {
	f.sent = append(f.sent, sentEmail{to: toEmail, template: "offer_accepted"})
	return nil
}

func (f *fakeEmail) SendOfferSubmittedEmail(_ context.Context, toEmail, _, _ string, _ int64) error {
	f.sent = append(f.sent, sentEmail{to: toEmail, template: "offer_submitted"})
	return nil
}

type fakeDirectory struct {
	names  map[uuid.UUID]string
	phones map[uuid.UUID]string
	emails map[uuid.UUID]string
}

func (f *fakeDirectory) DisplayNameFor(_ context.Context, userID uuid.UUID) (string, error) {
	return f.names[userID], nil
}

func (f *fakeDirectory) ContactFor(_ context.Context, userID uuid.UUID) (string, string, error) {
	return f.phones[userID], f.emails[userID], nil
}

func newTestModule() (*Module, *fakeWhatsApp, *fakeEmail, *fakeDirectory) {
	wa := &fakeWhatsApp{}
	mail := &fakeEmail{}
	dir := &fakeDirectory{
		names:  map[uuid.UUID]string{},
		phones: map[uuid.UUID]string{},
		emails: map[uuid.UUID]string{},
	}
	m := NewModule(wa, mail, logger.New("test"))
	m.SetProfileDirectory(dir)
	return m, wa, mail, dir
}

func acceptedEvent(contactMethod string) events.OfferAccepted {
	return events.OfferAccepted{
		BaseEvent:     events.NewBaseEvent(),
		OfferID:       uuid.New(),
		RequestID:     uuid.New(),
		ProviderID:    uuid.New(),
		OwnerID:       uuid.New(),
		PriceCents:    15000,
		ContactMethod: contactMethod,
		ProviderPhone: "+966512345678",
		ProviderEmail: "provider@example.com",
		RequestTitle:  "تركيب مكيف",
	}
}

func TestOfferAcceptedFanOut(t *testing.T) {
	tests := []struct {
		name          string
		contactMethod string
		wantWhatsApp  int
		wantEmail     int
	}{
		{name: "chat stays in-app", contactMethod: ContactMethodChat, wantWhatsApp: 0, wantEmail: 0},
		{name: "whatsapp only", contactMethod: ContactMethodWhatsApp, wantWhatsApp: 1, wantEmail: 0},
		{name: "both channels", contactMethod: ContactMethodBoth, wantWhatsApp: 1, wantEmail: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, wa, mail, dir := newTestModule()
			evt := acceptedEvent(tt.contactMethod)
			dir.names[evt.OwnerID] = "أبو خالد"
			dir.phones[evt.OwnerID] = "+966598765432"

			if err := m.handleOfferAccepted(context.Background(), evt); err != nil {
				t.Fatalf("handleOfferAccepted: %v", err)
			}
			if len(wa.sent) != tt.wantWhatsApp {
				t.Fatalf("whatsapp sends = %d, want %d", len(wa.sent), tt.wantWhatsApp)
			}
			if len(mail.sent) != tt.wantEmail {
				t.Fatalf("email sends = %d, want %d", len(mail.sent), tt.wantEmail)
			}
			if tt.wantWhatsApp > 0 {
				if wa.sent[0].phone != evt.ProviderPhone {
					t.Fatalf("whatsapp target = %q, want provider phone", wa.sent[0].phone)
				}
				if !strings.Contains(wa.sent[0].message, "أبو خالد") {
					t.Fatalf("message should carry the owner's name: %q", wa.sent[0].message)
				}
			}
			if tt.wantEmail > 0 && mail.sent[0].to != evt.ProviderEmail {
				t.Fatalf("email target = %q, want provider email", mail.sent[0].to)
			}
		})
	}
}

func TestOfferCreatedEmailsOwner(t *testing.T) {
	m, _, mail, dir := newTestModule()

	ownerID := uuid.New()
	providerID := uuid.New()
	dir.emails[ownerID] = "owner@example.com"
	dir.names[providerID] = "سالم"

	evt := events.OfferCreated{
		BaseEvent:    events.NewBaseEvent(),
		OfferID:      uuid.New(),
		RequestID:    uuid.New(),
		ProviderID:   providerID,
		OwnerID:      ownerID,
		PriceCents:   8000,
		RequestTitle: "تنظيف خزان",
	}
	if err := m.handleOfferCreated(context.Background(), evt); err != nil {
		t.Fatalf("handleOfferCreated: %v", err)
	}
	if len(mail.sent) != 1 || mail.sent[0].template != "offer_submitted" {
		t.Fatalf("sent = %+v, want one offer_submitted email", mail.sent)
	}
}

func TestOfferCreatedSkipsOwnerWithoutEmail(t *testing.T) {
	m, _, mail, _ := newTestModule()

	evt := events.OfferCreated{
		BaseEvent: events.NewBaseEvent(),
		OfferID:   uuid.New(),
		OwnerID:   uuid.New(),
	}
	if err := m.handleOfferCreated(context.Background(), evt); err != nil {
		t.Fatalf("handleOfferCreated: %v", err)
	}
	if len(mail.sent) != 0 {
		t.Fatalf("no email expected, got %+v", mail.sent)
	}
}

func TestMessageSentNudgesRecipient(t *testing.T) {
	m, wa, _, dir := newTestModule()

	senderID := uuid.New()
	recipientID := uuid.New()
	dir.names[senderID] = "نورة"
	dir.phones[recipientID] = "+966511111111"

	evt := events.MessageSent{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      uuid.New(),
		ConversationID: uuid.New(),
		SenderID:       senderID,
		RecipientID:    recipientID,
		HasVoice:       true,
	}
	if err := m.handleMessageSent(context.Background(), evt); err != nil {
		t.Fatalf("handleMessageSent: %v", err)
	}
	if len(wa.sent) != 1 {
		t.Fatalf("whatsapp sends = %d, want 1", len(wa.sent))
	}
	if !strings.Contains(wa.sent[0].message, "صوتية") {
		t.Fatalf("voice message nudge expected, got %q", wa.sent[0].message)
	}
}

func TestGuestVerifiedWelcomesNewUsersOnly(t *testing.T) {
	m, wa, _, _ := newTestModule()

	returning := events.GuestVerified{BaseEvent: events.NewBaseEvent(), ProfileID: uuid.New(), Phone: "+966512345678"}
	if err := m.handleGuestVerified(context.Background(), returning); err != nil {
		t.Fatalf("handleGuestVerified: %v", err)
	}
	if len(wa.sent) != 0 {
		t.Fatal("returning users should not get a welcome message")
	}

	fresh := returning
	fresh.NewUser = true
	if err := m.handleGuestVerified(context.Background(), fresh); err != nil {
		t.Fatalf("handleGuestVerified: %v", err)
	}
	if len(wa.sent) != 1 {
		t.Fatalf("whatsapp sends = %d, want 1", len(wa.sent))
	}
}
