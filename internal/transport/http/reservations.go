package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cimillas/autobook/internal/app"
	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/payment"
)

const idempotencyHeader = "Idempotency-Key"

// HoldProposer is the minimal interface needed to propose a hold.
type HoldProposer interface {
	ProposeHold(ctx context.Context, in app.HoldInput) (app.HoldResult, error)
}

type ReservationApprover interface {
	Approve(ctx context.Context, reservationID string) (domain.Reservation, error)
}

type PaymentCapturer interface {
	Capture(ctx context.Context, in app.CaptureInput) (app.CaptureResult, error)
}

type ReservationCanceller interface {
	Cancel(ctx context.Context, reservationID string) (domain.Reservation, error)
}

type PaymentRefunder interface {
	Refund(ctx context.Context, in app.RefundInput) (domain.Reservation, error)
}

type ReservationGetter interface {
	Reservation(ctx context.Context, reservationID string) (domain.Reservation, error)
}

// HandleProposeHold evaluates policy and places a hold. A fresh hold is
// 201, a replayed idempotency key is 200.
func HandleProposeHold(svc HoldProposer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req proposeHoldRequest
		if !decodeBody(w, r, &req) {
			return
		}
		key, ok := idempotencyKey(w, r, req.IdempotencyKey)
		if !ok {
			return
		}

		res, err := svc.ProposeHold(r.Context(), app.HoldInput{
			UserID:         req.UserID,
			AmountMinor:    req.AmountMinor,
			Currency:       req.Currency,
			Vendor:         req.Vendor,
			Policy:         req.Policy.resolve(),
			IdempotencyKey: key,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		status := http.StatusCreated
		if res.Idempotent {
			status = http.StatusOK
		}
		writeJSON(w, status, holdResponse{
			Status:        string(res.Status),
			ReservationID: res.ReservationID,
			Reasons:       nonNil(res.Reasons),
			Idempotent:    res.Idempotent,
		})
	}
}

func HandleApprove(svc ReservationApprover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Approve(r.Context(), chi.URLParam(r, "reservationID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

// HandleCapture authorizes and captures payment. A replayed idempotency
// key returns the recorded payment with "idempotent": true.
func HandleCapture(svc PaymentCapturer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req captureRequest
		if !decodeBody(w, r, &req) {
			return
		}
		key, ok := idempotencyKey(w, r, req.IdempotencyKey)
		if !ok {
			return
		}

		res, err := svc.Capture(r.Context(), app.CaptureInput{
			UserID:         req.UserID,
			ReservationID:  chi.URLParam(r, "reservationID"),
			IdempotencyKey: key,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, captureResponse{
			ReservationID: res.ReservationID,
			Status:        string(domain.StateConfirmed),
			Payment:       res.Payment,
			Idempotent:    res.Idempotent,
		})
	}
}

func HandleCancel(svc ReservationCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Cancel(r.Context(), chi.URLParam(r, "reservationID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func HandleRefund(svc PaymentRefunder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := svc.Refund(r.Context(), app.RefundInput{
			UserID:        req.UserID,
			ReservationID: chi.URLParam(r, "reservationID"),
			AmountMinor:   req.AmountMinor,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func HandleGetReservation(svc ReservationGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Reservation(r.Context(), chi.URLParam(r, "reservationID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

// decodeBody decodes a JSON body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}

// idempotencyKey prefers the header and falls back to the body field.
// Both present and different is a client error.
func idempotencyKey(w http.ResponseWriter, r *http.Request, fromBody string) (string, bool) {
	fromHeader := r.Header.Get(idempotencyHeader)
	switch {
	case fromHeader == "":
		return fromBody, true
	case fromBody == "" || fromBody == fromHeader:
		return fromHeader, true
	}
	writeError(w, http.StatusBadRequest, codeIdempotencyKeyMismatch, "Idempotency-Key header and idempotency_key differ")
	return "", false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type policyRequest struct {
	MaxSpendMinor         *int64   `json:"max_spend_minor"`
	Currency              *string  `json:"currency"`
	AllowedVendors        []string `json:"allowed_vendors"`
	DateWindowDays        *int     `json:"date_window_days"`
	RequireTwoStepPayment *bool    `json:"require_two_step_payment"`
}

// resolve fills omitted fields from domain.DefaultPolicy.
func (p *policyRequest) resolve() domain.Policy {
	out := domain.DefaultPolicy()
	if p == nil {
		return out
	}
	if p.MaxSpendMinor != nil {
		out.MaxSpendMinor = *p.MaxSpendMinor
	}
	if p.Currency != nil {
		out.Currency = *p.Currency
	}
	if p.AllowedVendors != nil {
		out.AllowedVendors = p.AllowedVendors
	}
	if p.DateWindowDays != nil {
		out.DateWindowDays = *p.DateWindowDays
	}
	if p.RequireTwoStepPayment != nil {
		out.RequireTwoStepPayment = *p.RequireTwoStepPayment
	}
	return out
}

type proposeHoldRequest struct {
	UserID         string         `json:"user_id"`
	AmountMinor    int64          `json:"amount_minor"`
	Currency       string         `json:"currency"`
	Vendor         *string        `json:"vendor"`
	Policy         *policyRequest `json:"policy"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type holdResponse struct {
	Status        string   `json:"status"`
	ReservationID string   `json:"reservation_id,omitempty"`
	Reasons       []string `json:"reasons"`
	Idempotent    bool     `json:"idempotent"`
}

type captureRequest struct {
	UserID         string `json:"user_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type captureResponse struct {
	ReservationID string                `json:"reservation_id"`
	Status        string                `json:"status"`
	Payment       payment.CaptureResult `json:"payment"`
	Idempotent    bool                  `json:"idempotent"`
}

type refundRequest struct {
	UserID      string `json:"user_id"`
	AmountMinor *int64 `json:"amount_minor"`
}

type reservationResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	Vendor          *string   `json:"vendor,omitempty"`
	State           string    `json:"state"`
	AuthorizationID string    `json:"authorization_id,omitempty"`
	PaymentID       string    `json:"payment_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toReservationResponse(res domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:              res.ID,
		UserID:          res.UserID,
		AmountMinor:     res.AmountMinor,
		Currency:        res.Currency,
		Vendor:          res.Vendor,
		State:           string(res.State),
		AuthorizationID: res.AuthorizationID,
		PaymentID:       res.PaymentID,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
	}
}
