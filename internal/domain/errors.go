package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoConsent            = errors.New("no consent")
	ErrMissingScope         = errors.New("payment_processing scope missing")
	ErrPolicyDenied         = errors.New("policy denied")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrInvalidState         = errors.New("invalid reservation state")
	ErrMissingPaymentMethod = errors.New("no payment method on file")
	ErrGatewayFailure       = errors.New("payment gateway failure")
	ErrStorage              = errors.New("storage failure")
	ErrInvalidAmount        = errors.New("amount must be a non-negative integer")
	ErrInvalidCurrency      = errors.New("currency must be a 3-letter ISO 4217 code")
	ErrInvalidPolicy        = errors.New("invalid policy")
	ErrUserRequired         = errors.New("user id required")
)

// PolicyDeniedError carries every rule a proposed spend violated.
type PolicyDeniedError struct {
	Reasons []string
}

func (e *PolicyDeniedError) Error() string {
	return "policy denied: " + strings.Join(e.Reasons, "; ")
}

func (e *PolicyDeniedError) Is(target error) bool {
	return target == ErrPolicyDenied
}

type InvalidStateError struct {
	Current  State
	Expected []State
}

func (e *InvalidStateError) Error() string {
	want := make([]string, 0, len(e.Expected))
	for _, s := range e.Expected {
		want = append(want, string(s))
	}
	return fmt.Sprintf("invalid reservation state %s, expected %s", e.Current, strings.Join(want, " or "))
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// GatewayError reports a non-successful payment gateway response.
type GatewayError struct {
	Op      string
	Status  string
	Details map[string]any
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: status %s", e.Op, e.Status)
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayFailure
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// StorageError marks err as a failure to durably record state.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
