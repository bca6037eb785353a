package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"marketplace_backend/internal/guestauth/gate"
	"marketplace_backend/internal/guestauth/otpstore"
	"marketplace_backend/internal/guestauth/transport"
	offerstransport "marketplace_backend/internal/offers/transport"
	profilestransport "marketplace_backend/internal/profiles/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type testConfig struct{}

func (testConfig) GetOTPTTL() time.Duration         { return 5 * time.Minute }
func (testConfig) GetOTPMaxAttempts() int           { return 3 }
func (testConfig) GetQueuedOfferTTL() time.Duration { return time.Hour }
func (testConfig) GetJWTAccessSecret() string       { return "test-secret" }
func (testConfig) GetAccessTokenTTL() time.Duration { return time.Hour }

type fakeProfiles struct {
	profile   profilestransport.ProfileResponse
	created   bool
	byPhoneID uuid.UUID
	byPhoneOK bool
}

func (f *fakeProfiles) ResolveByPhone(_ context.Context, _ string) (profilestransport.ProfileResponse, bool, error) {
	return f.profile, f.created, nil
}

func (f *fakeProfiles) FindByPhone(_ context.Context, _ string) (uuid.UUID, bool, error) {
	return f.byPhoneID, f.byPhoneOK, nil
}

type fakeRequests struct {
	authorID uuid.UUID
	err      error
}

func (f *fakeRequests) AuthorOf(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	return f.authorID, f.err
}

type fakeOffers struct {
	createErr error
	created   []offerstransport.CreateOfferRequest
}

func (f *fakeOffers) Create(_ context.Context, _ uuid.UUID, req offerstransport.CreateOfferRequest, _ []string) (offerstransport.OfferResponse, error) {
	if f.createErr != nil {
		return offerstransport.OfferResponse{}, f.createErr
	}
	f.created = append(f.created, req)
	return offerstransport.OfferResponse{ID: uuid.New()}, nil
}

type fakeSender struct {
	sendErr  error
	messages []string
	targets  []string
}

func (f *fakeSender) SendMessage(_ context.Context, phoneNumber, message string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.targets = append(f.targets, phoneNumber)
	f.messages = append(f.messages, message)
	return nil
}

type testGate struct {
	svc      *Service
	store    *otpstore.Store
	profiles *fakeProfiles
	requests *fakeRequests
	offers   *fakeOffers
	sender   *fakeSender
}

func newTestGate(t *testing.T) *testGate {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := otpstore.New(client, testConfig{})
	profiles := &fakeProfiles{
		profile: profilestransport.ProfileResponse{
			ID:                 uuid.New(),
			DisplayName:        "Fahd",
			OnboardingComplete: true,
		},
	}
	requests := &fakeRequests{authorID: uuid.New()}
	offers := &fakeOffers{}
	sender := &fakeSender{}

	svc := New(store, sender, nil, logger.New("test"), testConfig{})
	svc.SetProfileGateway(profiles)
	svc.SetRequestGateway(requests)
	svc.SetOfferSubmitter(offers)

	return &testGate{svc: svc, store: store, profiles: profiles, requests: requests, offers: offers, sender: sender}
}

func (g *testGate) beginAndSubmit(t *testing.T, queued *transport.QueuedOfferDraft) otpstore.Session {
	t.Helper()
	ctx := context.Background()

	begun, err := g.svc.Begin(ctx, transport.BeginGateRequest{RequestID: uuid.New()})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := g.svc.SubmitPhone(ctx, transport.SubmitPhoneRequest{
		SessionID:   begun.SessionID,
		Phone:       "0512345678",
		QueuedOffer: queued,
	}); err != nil {
		t.Fatalf("SubmitPhone: %v", err)
	}

	sess, err := g.store.GetSession(ctx, begun.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return sess
}

func TestVerificationHappyPath(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	sess := g.beginAndSubmit(t, nil)
	if sess.Step != gate.StepOTP {
		t.Fatalf("step = %q, want %q", sess.Step, gate.StepOTP)
	}
	if sess.Phone != "+966512345678" {
		t.Fatalf("phone = %q, want normalized E.164", sess.Phone)
	}
	if len(sess.Code) != otpDigits {
		t.Fatalf("code length = %d, want %d", len(sess.Code), otpDigits)
	}
	if len(g.sender.targets) != 1 || g.sender.targets[0] != "+966512345678" {
		t.Fatalf("code was not sent to the normalized phone: %v", g.sender.targets)
	}

	resp, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: sess.Code})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected an access token")
	}
	if resp.Guest {
		t.Fatal("onboarded profile should not get a guest token")
	}
	if resp.ProfileID != g.profiles.profile.ID {
		t.Fatalf("profileID = %v, want %v", resp.ProfileID, g.profiles.profile.ID)
	}

	if _, err := g.store.GetSession(ctx, sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("session should be deleted after verification, got err=%v", err)
	}
}

func TestSubmitPhoneRejectsInvalidNumber(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	begun, err := g.svc.Begin(ctx, transport.BeginGateRequest{RequestID: uuid.New()})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	_, err = g.svc.SubmitPhone(ctx, transport.SubmitPhoneRequest{SessionID: begun.SessionID, Phone: "12"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(g.sender.messages) != 0 {
		t.Fatal("no code should go out for an invalid phone")
	}
}

func TestSubmitPhoneGuardsOwnRequestBeforeIdentity(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// The submitted phone already belongs to the request's author.
	g.profiles.byPhoneID = g.requests.authorID
	g.profiles.byPhoneOK = true

	begun, err := g.svc.Begin(ctx, transport.BeginGateRequest{RequestID: uuid.New()})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	_, err = g.svc.SubmitPhone(ctx, transport.SubmitPhoneRequest{SessionID: begun.SessionID, Phone: "0512345678"})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if len(g.sender.messages) != 0 {
		t.Fatal("no code should go out when the guard refuses")
	}
}

func TestSubmitPhoneDeliveryFailureDoesNotAdvance(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	g.sender.sendErr = errors.New("gateway down")

	begun, err := g.svc.Begin(ctx, transport.BeginGateRequest{RequestID: uuid.New()})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	_, err = g.svc.SubmitPhone(ctx, transport.SubmitPhoneRequest{SessionID: begun.SessionID, Phone: "0512345678"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}

	sess, err := g.store.GetSession(ctx, begun.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Step != gate.StepPhone {
		t.Fatalf("step = %q, want %q", sess.Step, gate.StepPhone)
	}
}

func TestVerifyGuardsOwnRequestAfterIdentity(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// The phone lookup misses, but the resolved profile turns out to be the
	// request's author.
	g.profiles.profile.ID = g.requests.authorID

	sess := g.beginAndSubmit(t, nil)

	_, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: sess.Code})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if _, err := g.store.GetSession(ctx, sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("session should be deleted after the guard fires, got err=%v", err)
	}
}

func TestVerifyWrongCodeCountsAttempts(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	sess := g.beginAndSubmit(t, nil)

	wrongCode := "0000"
	if sess.Code == wrongCode {
		wrongCode = "1111"
	}

	maxAttempts := g.store.MaxAttempts()
	for i := 0; i < maxAttempts; i++ {
		_, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: wrongCode})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("attempt %d: err = %v, want validation", i+1, err)
		}
	}

	// The attempt budget is spent: even the right code is refused now.
	_, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: sess.Code})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden after attempt limit", err)
	}
	if _, err := g.store.GetSession(ctx, sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("locked session should be deleted, got err=%v", err)
	}
}

func TestBackDiscardsPendingCode(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	sess := g.beginAndSubmit(t, nil)

	stepped, err := g.svc.Back(ctx, transport.SessionRequest{SessionID: sess.ID})
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if stepped.Step != string(gate.StepPhone) {
		t.Fatalf("step = %q, want %q", stepped.Step, gate.StepPhone)
	}

	reloaded, err := g.store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reloaded.Code != "" {
		t.Fatal("back should discard the pending code")
	}
}

func TestVerifyDrainsQueuedOffer(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	sess := g.beginAndSubmit(t, &transport.QueuedOfferDraft{PriceCents: 25000, DeliveryDays: intPtr(3), Negotiable: true})

	resp, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: sess.Code})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.SubmittedOfferID == nil {
		t.Fatal("expected the queued draft to be submitted")
	}
	if resp.OfferQueued {
		t.Fatal("a submitted draft should not be reported as queued")
	}
	if len(g.offers.created) != 1 || g.offers.created[0].PriceCents != 25000 {
		t.Fatalf("submitted drafts = %+v", g.offers.created)
	}
}

func TestVerifyParksQueuedOfferOnFailure(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	g.offers.createErr = apperr.Unavailable("offers store down")

	sess := g.beginAndSubmit(t, &transport.QueuedOfferDraft{PriceCents: 9000, DeliveryDays: intPtr(1)})

	resp, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: sess.Code})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.SubmittedOfferID != nil {
		t.Fatal("failed submission should not report an offer ID")
	}
	if !resp.OfferQueued {
		t.Fatal("failed submission should park the draft")
	}

	parked, err := g.store.ListQueuedOffers(ctx, g.profiles.profile.ID)
	if err != nil {
		t.Fatalf("ListQueuedOffers: %v", err)
	}
	if len(parked) != 1 || parked[0].PriceCents != 9000 {
		t.Fatalf("parked drafts = %+v", parked)
	}

	// Once the offers module recovers, a retry drains the queue.
	g.offers.createErr = nil
	submitted, remaining, err := g.svc.RetryQueued(ctx, g.profiles.profile.ID)
	if err != nil {
		t.Fatalf("RetryQueued: %v", err)
	}
	if submitted != 1 || remaining != 0 {
		t.Fatalf("submitted=%d remaining=%d, want 1/0", submitted, remaining)
	}
	parked, err = g.store.ListQueuedOffers(ctx, g.profiles.profile.ID)
	if err != nil {
		t.Fatalf("ListQueuedOffers: %v", err)
	}
	if len(parked) != 0 {
		t.Fatalf("queue should be empty after retry, got %+v", parked)
	}
}

func TestVerifyParksQueuedOfferUntilOnboarding(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	g.profiles.profile.OnboardingComplete = false

	sess := g.beginAndSubmit(t, &transport.QueuedOfferDraft{PriceCents: 12000, DeliveryDays: intPtr(2)})

	resp, err := g.svc.Verify(ctx, transport.VerifyRequest{SessionID: sess.ID, Code: sess.Code})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !resp.Guest {
		t.Fatal("incomplete onboarding should yield a guest token")
	}
	if resp.SubmittedOfferID != nil || !resp.OfferQueued {
		t.Fatalf("draft should be parked, got id=%v queued=%v", resp.SubmittedOfferID, resp.OfferQueued)
	}
	if len(g.offers.created) != 0 {
		t.Fatalf("no offer should be submitted before onboarding, got %+v", g.offers.created)
	}

	parked, err := g.store.ListQueuedOffers(ctx, g.profiles.profile.ID)
	if err != nil {
		t.Fatalf("ListQueuedOffers: %v", err)
	}
	if len(parked) != 1 || parked[0].PriceCents != 12000 {
		t.Fatalf("parked drafts = %+v", parked)
	}

	// Completing onboarding drains the parked draft.
	submitted, remaining, err := g.svc.RetryQueued(ctx, g.profiles.profile.ID)
	if err != nil {
		t.Fatalf("RetryQueued: %v", err)
	}
	if submitted != 1 || remaining != 0 {
		t.Fatalf("submitted=%d remaining=%d, want 1/0", submitted, remaining)
	}
	if len(g.offers.created) != 1 || g.offers.created[0].PriceCents != 12000 {
		t.Fatalf("submitted drafts = %+v", g.offers.created)
	}
}

func TestRetryQueuedDropsRefusedDrafts(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	draft := otpstore.QueuedOffer{
		ID:           uuid.New(),
		RequestID:    uuid.New(),
		PriceCents:   5000,
		DeliveryDays: intPtr(2),
		QueuedAt:     time.Now().UTC(),
	}
	userID := uuid.New()
	if err := g.store.PushQueuedOffer(ctx, userID, draft); err != nil {
		t.Fatalf("PushQueuedOffer: %v", err)
	}

	g.offers.createErr = apperr.Conflict("offer already exists")

	submitted, remaining, err := g.svc.RetryQueued(ctx, userID)
	if err != nil {
		t.Fatalf("RetryQueued: %v", err)
	}
	if submitted != 0 || remaining != 0 {
		t.Fatalf("submitted=%d remaining=%d, want 0/0", submitted, remaining)
	}
	parked, err := g.store.ListQueuedOffers(ctx, userID)
	if err != nil {
		t.Fatalf("ListQueuedOffers: %v", err)
	}
	if len(parked) != 0 {
		t.Fatalf("refused draft should be dropped, got %+v", parked)
	}
}

func TestRetryQueuedKeepsDraftOnUnclassifiedError(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	userID := uuid.New()
	if err := g.store.PushQueuedOffer(ctx, userID, otpstore.QueuedOffer{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		QueuedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("PushQueuedOffer: %v", err)
	}

	// A raw driver error carries no kind; it must count as transient.
	g.offers.createErr = errors.New("connection reset by peer")

	submitted, remaining, err := g.svc.RetryQueued(ctx, userID)
	if err != nil {
		t.Fatalf("RetryQueued: %v", err)
	}
	if submitted != 0 || remaining != 1 {
		t.Fatalf("submitted=%d remaining=%d, want 0/1", submitted, remaining)
	}
	parked, err := g.store.ListQueuedOffers(ctx, userID)
	if err != nil {
		t.Fatalf("ListQueuedOffers: %v", err)
	}
	if len(parked) != 1 {
		t.Fatalf("draft should survive an unclassified failure, got %+v", parked)
	}
}

func TestRetryQueuedDropsWrappedRefusal(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	userID := uuid.New()
	if err := g.store.PushQueuedOffer(ctx, userID, otpstore.QueuedOffer{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		QueuedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("PushQueuedOffer: %v", err)
	}

	// A refusal stays a refusal even when wrapped by a caller.
	g.offers.createErr = fmt.Errorf("create offer: %w", apperr.Conflict("offer already exists"))

	submitted, remaining, err := g.svc.RetryQueued(ctx, userID)
	if err != nil {
		t.Fatalf("RetryQueued: %v", err)
	}
	if submitted != 0 || remaining != 0 {
		t.Fatalf("submitted=%d remaining=%d, want 0/0", submitted, remaining)
	}
	parked, err := g.store.ListQueuedOffers(ctx, userID)
	if err != nil {
		t.Fatalf("ListQueuedOffers: %v", err)
	}
	if len(parked) != 0 {
		t.Fatalf("wrapped refusal should drop the draft, got %+v", parked)
	}
}

func intPtr(v int) *int {
	return &v
}

func TestQueuedOffersForRequestFiltersByRequest(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	userID := uuid.New()
	wantRequest := uuid.New()
	for _, reqID := range []uuid.UUID{wantRequest, uuid.New()} {
		if err := g.store.PushQueuedOffer(ctx, userID, otpstore.QueuedOffer{
			ID:        uuid.New(),
			RequestID: reqID,
			QueuedAt:  time.Now().UTC(),
		}); err != nil {
			t.Fatalf("PushQueuedOffer: %v", err)
		}
	}

	offers, err := g.svc.QueuedOffersForRequest(ctx, wantRequest, userID)
	if err != nil {
		t.Fatalf("QueuedOffersForRequest: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	if offers[0].RequestID != wantRequest {
		t.Fatalf("requestID = %v, want %v", offers[0].RequestID, wantRequest)
	}
	if offers[0].ProviderID != userID {
		t.Fatalf("providerID = %v, want viewer", offers[0].ProviderID)
	}
}
