package domain

import (
	"testing"

	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	fmtUnexpectedErr = "unexpected error: %v"
	fmtWantKind      = "want error kind %v, got %v (err=%v)"
)

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusCancelled, StatusCompleted} {
		if !IsTerminal(s) {
			t.Fatalf("expected %q to be terminal", s)
		}
		for _, to := range []Status{StatusPending, StatusNegotiating, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted} {
			if CanTransition(s, to) {
				t.Fatalf("terminal status %q must not transition to %q", s, to)
			}
		}
	}
}

func TestAcceptedCannotReturnToPending(t *testing.T) {
	if CanTransition(StatusAccepted, StatusPending) {
		t.Fatal("accepted offer must not return to pending")
	}
	if CanTransition(StatusAccepted, StatusNegotiating) {
		t.Fatal("accepted offer must not return to negotiating")
	}
	if !CanTransition(StatusAccepted, StatusCompleted) {
		t.Fatal("accepted offer must be completable")
	}
}

func testOffer(status Status, negotiable bool) (Offer, uuid.UUID, uuid.UUID) {
	owner := uuid.New()
	provider := uuid.New()
	return Offer{
		ID:         uuid.New(),
		RequestID:  uuid.New(),
		ProviderID: provider,
		OwnerID:    owner,
		Negotiable: negotiable,
		Status:     status,
	}, owner, provider
}

func TestValidateStartNegotiation(t *testing.T) {
	t.Run("owner on pending negotiable offer", func(t *testing.T) {
		o, owner, _ := testOffer(StatusPending, true)
		if err := ValidateStartNegotiation(o, owner); err != nil {
			t.Fatalf(fmtUnexpectedErr, err)
		}
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		o, _, provider := testOffer(StatusPending, true)
		err := ValidateStartNegotiation(o, provider)
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf(fmtWantKind, apperr.KindForbidden, apperr.GetKind(err), err)
		}
	})

	t.Run("non-negotiable offer is forbidden", func(t *testing.T) {
		o, owner, _ := testOffer(StatusPending, false)
		err := ValidateStartNegotiation(o, owner)
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf(fmtWantKind, apperr.KindForbidden, apperr.GetKind(err), err)
		}
	})

	t.Run("past pending is invalid state", func(t *testing.T) {
		for _, s := range []Status{StatusNegotiating, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted} {
			o, owner, _ := testOffer(s, true)
			err := ValidateStartNegotiation(o, owner)
			if !apperr.Is(err, apperr.KindInvalidState) {
				t.Fatalf("status %q: %v", s, err)
			}
		}
	})
}

func TestValidateAccept(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusNegotiating} {
		o, owner, _ := testOffer(s, true)
		if err := ValidateAccept(o, owner); err != nil {
			t.Fatalf("status %q: "+fmtUnexpectedErr, s, err)
		}
	}

	for _, s := range []Status{StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted} {
		o, owner, _ := testOffer(s, true)
		err := ValidateAccept(o, owner)
		if !apperr.Is(err, apperr.KindInvalidState) {
			t.Fatalf("status %q: want invalid state, got %v", s, err)
		}
	}

	o, _, provider := testOffer(StatusPending, true)
	if err := ValidateAccept(o, provider); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf(fmtWantKind, apperr.KindForbidden, apperr.GetKind(err), err)
	}
}

func TestValidateCancelOnlyWhilePending(t *testing.T) {
	o, _, provider := testOffer(StatusPending, true)
	if err := ValidateCancel(o, provider); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}

	for _, s := range []Status{StatusNegotiating, StatusAccepted, StatusRejected, StatusCompleted} {
		o, _, provider := testOffer(s, true)
		err := ValidateCancel(o, provider)
		if !apperr.Is(err, apperr.KindInvalidState) {
			t.Fatalf("status %q: want invalid state, got %v", s, err)
		}
	}

	// The request owner cannot cancel a provider's offer.
	o2, owner, _ := testOffer(StatusPending, true)
	if err := ValidateCancel(o2, owner); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf(fmtWantKind, apperr.KindForbidden, apperr.GetKind(err), err)
	}
}

func TestValidateComplete(t *testing.T) {
	o, owner, _ := testOffer(StatusAccepted, true)
	if err := ValidateComplete(o, owner); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}

	for _, s := range []Status{StatusPending, StatusNegotiating, StatusRejected, StatusCancelled, StatusCompleted} {
		o, owner, _ := testOffer(s, true)
		if err := ValidateComplete(o, owner); !apperr.Is(err, apperr.KindInvalidState) {
			t.Fatalf("status %q: want invalid state, got %v", s, err)
		}
	}

	o3, _, provider := testOffer(StatusAccepted, true)
	if err := ValidateComplete(o3, provider); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf(fmtWantKind, apperr.KindForbidden, apperr.GetKind(err), err)
	}
}
