// Package gate implements the guest verification step machine: the linear
// phone-then-OTP flow an unverified visitor walks through before acting on a
// request.
package gate

import "marketplace_backend/platform/apperr"

// Step is one stop in the verification flow. The flow is strictly linear:
// none -> phone -> otp -> none, with a single back-step from otp to phone.
type Step string

const (
	StepNone  Step = "none"
	StepPhone Step = "phone"
	StepOTP   Step = "otp"
)

// Begin starts the gate. Only valid from the idle state.
func Begin(s Step) (Step, error) {
	if s != StepNone {
		return s, apperr.InvalidState("verification is already in progress")
	}
	return StepPhone, nil
}

// SubmitPhone advances past phone entry into OTP entry.
func SubmitPhone(s Step) (Step, error) {
	if s != StepPhone {
		return s, apperr.InvalidState("no phone number is being collected")
	}
	return StepOTP, nil
}

// Back returns from OTP entry to phone entry, e.g. to fix a typo.
func Back(s Step) (Step, error) {
	if s != StepOTP {
		return s, apperr.InvalidState("there is no step to go back to")
	}
	return StepPhone, nil
}

// Confirm completes the flow after a correct code. Only valid from OTP entry.
func Confirm(s Step) (Step, error) {
	if s != StepOTP {
		return s, apperr.InvalidState("no code is being verified")
	}
	return StepNone, nil
}

// Cancel abandons the flow from any step. Cancelling an idle gate is a no-op.
func Cancel(s Step) Step {
	return StepNone
}
