package gate

import (
	"testing"

	"marketplace_backend/platform/apperr"
)

func TestGateWalksLinearFlow(t *testing.T) {
	s, err := Begin(StepNone)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if s != StepPhone {
		t.Fatalf("after Begin: step = %v, want %v", s, StepPhone)
	}

	s, err = SubmitPhone(s)
	if err != nil {
		t.Fatalf("SubmitPhone() error = %v", err)
	}
	if s != StepOTP {
		t.Fatalf("after SubmitPhone: step = %v, want %v", s, StepOTP)
	}

	s, err = Confirm(s)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if s != StepNone {
		t.Fatalf("after Confirm: step = %v, want %v", s, StepNone)
	}
}

func TestGateBackReturnsToPhoneEntry(t *testing.T) {
	s, err := Back(StepOTP)
	if err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	if s != StepPhone {
		t.Fatalf("step = %v, want %v", s, StepPhone)
	}
}

func TestGateRejectsSkippedSteps(t *testing.T) {
	cases := []struct {
		name string
		fn   func(Step) (Step, error)
		from Step
	}{
		{"begin while in progress", Begin, StepPhone},
		{"submit phone from idle", SubmitPhone, StepNone},
		{"submit phone from otp", SubmitPhone, StepOTP},
		{"confirm from idle", Confirm, StepNone},
		{"confirm from phone entry", Confirm, StepPhone},
		{"back from phone entry", Back, StepPhone},
		{"back from idle", Back, StepNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(tc.from)
			if !apperr.Is(err, apperr.KindInvalidState) {
				t.Fatalf("error = %v, want invalid state", err)
			}
			if got != tc.from {
				t.Fatalf("step changed to %v on invalid transition", got)
			}
		})
	}
}

func TestGateCancelAlwaysReturnsToIdle(t *testing.T) {
	for _, from := range []Step{StepNone, StepPhone, StepOTP} {
		if got := Cancel(from); got != StepNone {
			t.Fatalf("Cancel(%v) = %v, want %v", from, got, StepNone)
		}
	}
}
