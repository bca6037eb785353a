// Package service implements the guest verification gate: phone entry, OTP
// delivery over WhatsApp, the own-request guard and the post-verification
// drain of queued offers.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"marketplace_backend/internal/auth/token"
	"marketplace_backend/internal/events"
	"marketplace_backend/internal/guestauth/gate"
	"marketplace_backend/internal/guestauth/otpstore"
	"marketplace_backend/internal/guestauth/transport"
	offersrepo "marketplace_backend/internal/offers/repository"
	offerstransport "marketplace_backend/internal/offers/transport"
	profilestransport "marketplace_backend/internal/profiles/transport"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/phone"

	"marketplace_backend/internal/offers/domain"

	"github.com/google/uuid"
)

const otpDigits = 4

// ProfileGateway resolves profiles for verified phone numbers.
type ProfileGateway interface {
	ResolveByPhone(ctx context.Context, phone string) (profilestransport.ProfileResponse, bool, error)
	FindByPhone(ctx context.Context, phone string) (uuid.UUID, bool, error)
}

// RequestGateway resolves request authorship for the own-request guard.
type RequestGateway interface {
	AuthorOf(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error)
}

// OfferSubmitter submits drained offer drafts to the offers module.
type OfferSubmitter interface {
	Create(ctx context.Context, providerID uuid.UUID, req offerstransport.CreateOfferRequest, attachmentURLs []string) (offerstransport.OfferResponse, error)
}

// OTPSender delivers one-time codes. Implemented by the WhatsApp client.
type OTPSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

// Service coordinates the guest verification flow.
type Service struct {
	store    *otpstore.Store
	sender   OTPSender
	bus      events.Bus
	log      *logger.Logger
	cfg      config.AuthConfig
	profiles ProfileGateway
	requests RequestGateway
	offers   OfferSubmitter
}

// New creates a new guest auth service.
func New(store *otpstore.Store, sender OTPSender, bus events.Bus, log *logger.Logger, cfg config.AuthConfig) *Service {
	return &Service{store: store, sender: sender, bus: bus, log: log, cfg: cfg}
}

// SetProfileGateway wires the profile lookup dependency.
func (s *Service) SetProfileGateway(p ProfileGateway) { s.profiles = p }

// SetRequestGateway wires the request lookup dependency.
func (s *Service) SetRequestGateway(r RequestGateway) { s.requests = r }

// SetOfferSubmitter wires the offer submission dependency.
func (s *Service) SetOfferSubmitter(o OfferSubmitter) { s.offers = o }

// Begin opens the gate for an action on a request and returns the session.
func (s *Service) Begin(ctx context.Context, req transport.BeginGateRequest) (transport.StepResponse, error) {
	// The request must exist before a verification flow is worth starting.
	if _, err := s.requests.AuthorOf(ctx, req.RequestID); err != nil {
		return transport.StepResponse{}, err
	}

	step, err := gate.Begin(gate.StepNone)
	if err != nil {
		return transport.StepResponse{}, err
	}

	sess := otpstore.Session{
		ID:        uuid.New(),
		Step:      step,
		RequestID: req.RequestID,
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return transport.StepResponse{}, err
	}

	return stepResponse(sess), nil
}

// SubmitPhone validates the phone number, runs the pre-identity own-request
// guard and sends the one-time code. The step only advances once the code
// actually went out.
func (s *Service) SubmitPhone(ctx context.Context, req transport.SubmitPhoneRequest) (transport.StepResponse, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return transport.StepResponse{}, err
	}

	normalized := phone.NormalizeE164(req.Phone)
	if !phone.IsValid(normalized) {
		return transport.StepResponse{}, apperr.Validation("invalid phone number")
	}

	// Pre-identity own-request guard: a phone already bound to the request's
	// author cannot start an offer on it.
	authorID, err := s.requests.AuthorOf(ctx, sess.RequestID)
	if err != nil {
		return transport.StepResponse{}, err
	}
	if profileID, found, err := s.profiles.FindByPhone(ctx, normalized); err != nil {
		return transport.StepResponse{}, err
	} else if found && profileID == authorID {
		s.log.VerificationEvent("phone_rejected", normalized, false, "own request")
		return transport.StepResponse{}, apperr.Forbidden("you cannot submit an offer on your own request")
	}

	step, err := gate.SubmitPhone(sess.Step)
	if err != nil {
		return transport.StepResponse{}, err
	}

	code, err := token.GenerateOTP(otpDigits)
	if err != nil {
		return transport.StepResponse{}, fmt.Errorf("generate otp: %w", err)
	}

	if err := s.sender.SendMessage(ctx, normalized, otpMessage(code)); err != nil {
		s.log.VerificationEvent("otp_send_failed", normalized, false, err.Error())
		return transport.StepResponse{}, apperr.Unavailable("verification code could not be delivered")
	}

	sess.Step = step
	sess.Phone = normalized
	sess.Code = code
	sess.Attempts = 0
	if req.QueuedOffer != nil {
		sess.QueuedOffer = &otpstore.QueuedOffer{
			ID:           uuid.New(),
			RequestID:    sess.RequestID,
			PriceCents:   req.QueuedOffer.PriceCents,
			DeliveryDays: req.QueuedOffer.DeliveryDays,
			Negotiable:   req.QueuedOffer.Negotiable,
			QueuedAt:     time.Now().UTC(),
		}
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return transport.StepResponse{}, err
	}

	s.log.VerificationEvent("otp_sent", normalized, true, "")
	return stepResponse(sess), nil
}

// Resend sends a fresh code to the phone already on the session.
func (s *Service) Resend(ctx context.Context, req transport.SessionRequest) (transport.StepResponse, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return transport.StepResponse{}, err
	}
	if sess.Step != gate.StepOTP {
		return transport.StepResponse{}, apperr.InvalidState("no code is being verified")
	}

	code, err := token.GenerateOTP(otpDigits)
	if err != nil {
		return transport.StepResponse{}, fmt.Errorf("generate otp: %w", err)
	}
	if err := s.sender.SendMessage(ctx, sess.Phone, otpMessage(code)); err != nil {
		return transport.StepResponse{}, apperr.Unavailable("verification code could not be delivered")
	}

	sess.Code = code
	sess.Attempts = 0
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return transport.StepResponse{}, err
	}

	s.log.VerificationEvent("otp_resent", sess.Phone, true, "")
	return stepResponse(sess), nil
}

// Back returns from code entry to phone entry, discarding the pending code.
func (s *Service) Back(ctx context.Context, req transport.SessionRequest) (transport.StepResponse, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return transport.StepResponse{}, err
	}

	step, err := gate.Back(sess.Step)
	if err != nil {
		return transport.StepResponse{}, err
	}

	sess.Step = step
	sess.Code = ""
	sess.Attempts = 0
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return transport.StepResponse{}, err
	}
	return stepResponse(sess), nil
}

// Cancel abandons the flow and discards the session with anything queued
// behind it.
func (s *Service) Cancel(ctx context.Context, req transport.SessionRequest) error {
	return s.store.DeleteSession(ctx, req.SessionID)
}

// Verify checks the code, resolves the profile, re-runs the own-request
// guard against the confirmed identity and issues an access token. A queued
// offer drains here: straight into the offers module when possible, into the
// user's retry queue otherwise.
func (s *Service) Verify(ctx context.Context, req transport.VerifyRequest) (transport.VerifyResponse, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return transport.VerifyResponse{}, err
	}
	if _, err := gate.Confirm(sess.Step); err != nil {
		return transport.VerifyResponse{}, err
	}

	if sess.Attempts >= s.store.MaxAttempts() {
		_ = s.store.DeleteSession(ctx, sess.ID)
		s.log.VerificationEvent("otp_locked", sess.Phone, false, "attempt limit reached")
		return transport.VerifyResponse{}, apperr.Forbidden("too many attempts, start verification again")
	}

	if subtle.ConstantTimeCompare([]byte(req.Code), []byte(sess.Code)) != 1 {
		sess.Attempts++
		if err := s.store.SaveSession(ctx, sess); err != nil {
			return transport.VerifyResponse{}, err
		}
		s.log.VerificationEvent("otp_mismatch", sess.Phone, false, "")
		return transport.VerifyResponse{}, apperr.Validation("incorrect verification code")
	}

	profile, created, err := s.profiles.ResolveByPhone(ctx, sess.Phone)
	if err != nil {
		return transport.VerifyResponse{}, err
	}

	// Post-identity own-request guard: the confirmed profile may turn out to
	// be the request's author even when the phone lookup earlier missed it.
	authorID, err := s.requests.AuthorOf(ctx, sess.RequestID)
	if err != nil {
		return transport.VerifyResponse{}, err
	}
	if profile.ID == authorID {
		_ = s.store.DeleteSession(ctx, sess.ID)
		s.log.VerificationEvent("verify_rejected", sess.Phone, false, "own request")
		return transport.VerifyResponse{}, apperr.Forbidden("you cannot submit an offer on your own request")
	}

	guest := !profile.OnboardingComplete
	accessToken, err := token.SignAccessToken(profile.ID, guest, s.cfg.GetAccessTokenTTL(), s.cfg.GetJWTAccessSecret())
	if err != nil {
		return transport.VerifyResponse{}, fmt.Errorf("sign access token: %w", err)
	}

	resp := transport.VerifyResponse{
		Token:              accessToken,
		ProfileID:          profile.ID,
		Guest:              guest,
		NewUser:            created,
		OnboardingComplete: profile.OnboardingComplete,
	}

	if sess.QueuedOffer != nil {
		if profile.OnboardingComplete {
			resp.SubmittedOfferID, resp.OfferQueued = s.drainQueuedOffer(ctx, profile.ID, *sess.QueuedOffer)
		} else {
			// Offers need a presentable profile. Park the draft until
			// onboarding completes, then submit it.
			if err := s.store.PushQueuedOffer(ctx, profile.ID, *sess.QueuedOffer); err != nil {
				s.log.Warn("parking queued offer failed", "userId", profile.ID, "error", err)
			} else {
				resp.OfferQueued = true
			}
		}
	}

	if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
		s.log.Warn("deleting verification session failed", "sessionId", sess.ID, "error", err)
	}

	s.log.VerificationEvent("verified", sess.Phone, true, "")
	s.publish(ctx, events.GuestVerified{
		BaseEvent: events.NewBaseEvent(),
		ProfileID: profile.ID,
		Phone:     sess.Phone,
		NewUser:   created,
	})

	return resp, nil
}

// drainQueuedOffer submits a held-back draft. A failed submission parks the
// draft in the user's retry queue instead of losing it.
func (s *Service) drainQueuedOffer(ctx context.Context, userID uuid.UUID, draft otpstore.QueuedOffer) (*uuid.UUID, bool) {
	created, err := s.offers.Create(ctx, userID, offerstransport.CreateOfferRequest{
		RequestID:    draft.RequestID,
		PriceCents:   draft.PriceCents,
		DeliveryDays: draft.DeliveryDays,
		Negotiable:   draft.Negotiable,
	}, nil)
	if err == nil {
		return &created.ID, false
	}

	s.log.Warn("submitting queued offer failed, parking for retry",
		"userId", userID, "requestId", draft.RequestID, "error", err)
	if err := s.store.PushQueuedOffer(ctx, userID, draft); err != nil {
		s.log.Error("parking queued offer failed", "userId", userID, "error", err)
		return nil, false
	}
	return nil, true
}

// RetryQueued resubmits every parked offer draft for a user. Drafts that go
// through are removed from the queue; the rest stay for the next retry.
func (s *Service) RetryQueued(ctx context.Context, userID uuid.UUID) (submitted int, remaining int, err error) {
	drafts, err := s.store.ListQueuedOffers(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	for _, draft := range drafts {
		_, err := s.offers.Create(ctx, userID, offerstransport.CreateOfferRequest{
			RequestID:    draft.RequestID,
			PriceCents:   draft.PriceCents,
			DeliveryDays: draft.DeliveryDays,
			Negotiable:   draft.Negotiable,
		}, nil)
		if err != nil {
			// Permanent refusals (own request, duplicate) drop the draft;
			// anything else counts as transient and keeps it queued.
			if !permanentRefusal(err) {
				remaining++
				continue
			}
			if removeErr := s.store.RemoveQueuedOffer(ctx, userID, draft.ID); removeErr != nil {
				s.log.Warn("removing refused queued offer failed", "userId", userID, "error", removeErr)
			}
			continue
		}
		if removeErr := s.store.RemoveQueuedOffer(ctx, userID, draft.ID); removeErr != nil {
			s.log.Warn("removing submitted queued offer failed", "userId", userID, "error", removeErr)
		}
		submitted++
	}
	return submitted, remaining, nil
}

// permanentRefusal reports whether a submission failure can never succeed on
// retry. Unknown errors are treated as transient so the draft survives.
func permanentRefusal(err error) bool {
	switch apperr.GetKind(err) {
	case apperr.KindValidation, apperr.KindBadRequest, apperr.KindConflict,
		apperr.KindInvalidState, apperr.KindForbidden, apperr.KindNotFound:
		return true
	default:
		return false
	}
}

// QueuedOffersForRequest exposes a user's parked drafts for one request as
// pending offers, so request views can fold them in next to confirmed rows.
func (s *Service) QueuedOffersForRequest(ctx context.Context, requestID, viewerID uuid.UUID) ([]offersrepo.Offer, error) {
	drafts, err := s.store.ListQueuedOffers(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	var out []offersrepo.Offer
	for _, draft := range drafts {
		if draft.RequestID != requestID {
			continue
		}
		out = append(out, offersrepo.Offer{
			ID:           draft.ID,
			RequestID:    draft.RequestID,
			ProviderID:   viewerID,
			PriceCents:   draft.PriceCents,
			DeliveryDays: draft.DeliveryDays,
			Negotiable:   draft.Negotiable,
			Status:       domain.StatusPending,
			CreatedAt:    draft.QueuedAt,
		})
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, evt)
}

func stepResponse(sess otpstore.Session) transport.StepResponse {
	return transport.StepResponse{SessionID: sess.ID, Step: string(sess.Step)}
}

func otpMessage(code string) string {
	return fmt.Sprintf("رمز التحقق الخاص بك هو: %s", code)
}
