package domain

import "time"

type Action string

const (
	ActionProposed   Action = "PROPOSED"
	ActionHeld       Action = "HELD"
	ActionApproved   Action = "APPROVED"
	ActionAuthorized Action = "AUTHORIZED"
	ActionCaptured   Action = "CAPTURED"
	ActionConfirmed  Action = "CONFIRMED"
	ActionDenied     Action = "DENIED"
	ActionError      Action = "ERROR"
	ActionCancelled  Action = "CANCELLED"
	ActionRefunded   Action = "REFUNDED"
)

func (a Action) Valid() bool {
	switch a {
	case ActionProposed, ActionHeld, ActionApproved, ActionAuthorized, ActionCaptured,
		ActionConfirmed, ActionDenied, ActionError, ActionCancelled, ActionRefunded:
		return true
	}
	return false
}

type AuditStatus string

const (
	AuditOK     AuditStatus = "ok"
	AuditDenied AuditStatus = "denied"
	AuditError  AuditStatus = "error"
)

func (s AuditStatus) Valid() bool {
	return s == AuditOK || s == AuditDenied || s == AuditError
}

// Reasons shared between the state machine and auditors.
const (
	ReasonNoConsent        = "no consent"
	ReasonMissingScope     = "payment_processing scope missing"
	ReasonIdempotentReturn = "idempotent-return"
)

// AuditEvent is one immutable record of a transition attempt.
type AuditEvent struct {
	ID            string
	Seq           int64
	CreatedAt     time.Time
	Actor         string
	Action        Action
	Status        AuditStatus
	ReservationID string
	AmountMinor   *int64
	Currency      string
	Vendor        string
	Reasons       []string
	Details       map[string]any
}

// HasReason reports whether reason is among the event's reasons.
func (e AuditEvent) HasReason(reason string) bool {
	for _, r := range e.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}
