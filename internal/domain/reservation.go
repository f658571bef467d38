package domain

import (
	"fmt"
	"strings"
	"time"
)

type State string

const (
	StateHeld      State = "HELD"
	StateApproved  State = "APPROVED"
	StateConfirmed State = "CONFIRMED"
	StateDenied    State = "DENIED"
	StateError     State = "ERROR"
	StateCancelled State = "CANCELLED"
	StateRefunded  State = "REFUNDED"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case StateDenied, StateError, StateCancelled, StateRefunded:
		return true
	}
	return false
}

func (s State) Valid() bool {
	switch s {
	case StateHeld, StateApproved, StateConfirmed, StateDenied, StateError, StateCancelled, StateRefunded:
		return true
	}
	return false
}

// Event names a request to move a reservation between states.
type Event string

const (
	EventApprove Event = "approve"
	EventCapture Event = "capture"
	EventCancel  Event = "cancel"
	EventRefund  Event = "refund"
)

type transitionKey struct {
	from State
	ev   Event
}

// transitions is the complete set of legal moves. A reservation is born
// HELD; DENIED and ERROR are outcomes of a proposal and never stored.
var transitions = map[transitionKey]State{
	{StateHeld, EventApprove}:     StateApproved,
	{StateApproved, EventApprove}: StateApproved,
	{StateApproved, EventCapture}: StateConfirmed,
	{StateHeld, EventCancel}:      StateCancelled,
	{StateApproved, EventCancel}:  StateCancelled,
	{StateConfirmed, EventRefund}: StateRefunded,
}

// expectedFrom lists the states an event may start from, for error reporting.
var expectedFrom = map[Event][]State{
	EventApprove: {StateHeld, StateApproved},
	EventCapture: {StateApproved},
	EventCancel:  {StateHeld, StateApproved},
	EventRefund:  {StateConfirmed},
}

// Transition returns the state reached by applying ev to current, or an
// *InvalidStateError when the move is not in the table.
func Transition(current State, ev Event) (State, error) {
	next, ok := transitions[transitionKey{current, ev}]
	if !ok {
		return current, &InvalidStateError{Current: current, Expected: expectedFrom[ev]}
	}
	return next, nil
}

// Reservation is one proposed-then-possibly-executed spend.
type Reservation struct {
	ID              string
	UserID          string
	AmountMinor     int64
	Currency        string
	Vendor          *string
	RequireTwoStep  bool
	State           State
	AuthorizationID string
	PaymentID       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// VendorName returns the vendor or "" when none was given.
func (r Reservation) VendorName() string {
	if r.Vendor == nil {
		return ""
	}
	return *r.Vendor
}

// FormatReservationID renders a sequence number as a reservation id.
func FormatReservationID(seq int64) string {
	return fmt.Sprintf("res_%05d", seq)
}

// NormalizeCurrency upper-cases code and checks it is three ASCII letters.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}
