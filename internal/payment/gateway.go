// Package payment models the payment gateway as an opaque capability.
// The booking core never talks to a real card network; it calls a Gateway
// and treats any status other than the expected success value as failure.
package payment

import (
	"context"
	"fmt"
)

const (
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusRefunded   = "refunded"
	StatusDeclined   = "declined"
	StatusError      = "error"
)

// Method is an already-decrypted payment method token.
type Method struct {
	Type  string `json:"type"`
	Token string `json:"-"`
	Label string `json:"label,omitempty"`
	Brand string `json:"brand,omitempty"`
}

type Authorization struct {
	Status          string         `json:"status"`
	AuthorizationID string         `json:"authorization_id,omitempty"`
	AmountMinor     int64          `json:"amount_minor"`
	Currency        string         `json:"currency"`
	MethodLabel     string         `json:"method_label,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
}

// CaptureResult is what a capture replay returns verbatim.
type CaptureResult struct {
	Status          string `json:"status"`
	PaymentID       string `json:"payment_id,omitempty"`
	AuthorizationID string `json:"authorization_id,omitempty"`
}

type RefundResult struct {
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id,omitempty"`
	AmountMinor *int64 `json:"amount_minor,omitempty"`
}

// Gateway authorizes, captures and refunds against real money. Every call
// may fail or time out.
type Gateway interface {
	Authorize(ctx context.Context, amountMinor int64, currency string, method Method, details map[string]any) (Authorization, error)
	Capture(ctx context.Context, authorizationID string) (CaptureResult, error)
	Refund(ctx context.Context, paymentID string, amountMinor *int64) (RefundResult, error)
}

// MaskPAN keeps the last four digits of a card number visible.
func MaskPAN(last4 string) string {
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return fmt.Sprintf("**** **** **** %s", last4)
}
