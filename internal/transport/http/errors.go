package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/autobook/internal/domain"
)

const (
	codeMethodNotAllowed       = "method_not_allowed"
	codeNotFound               = "not_found"
	codeInvalidRequestBody     = "invalid_request_body"
	codeMissingRequiredField   = "missing_required_field"
	codeInvalidLimit           = "invalid_limit"
	codeInvalidAction          = "invalid_action"
	codeIdempotencyKeyMismatch = "idempotency_key_mismatch"
	codeUserRequired           = "user_required"
	codeInvalidAmount          = "invalid_amount"
	codeInvalidCurrency        = "invalid_currency"
	codeInvalidPolicy          = "invalid_policy"
	codeNoConsent              = "no_consent"
	codeMissingScope           = "missing_scope"
	codePolicyDenied           = "policy_denied"
	codeReservationNotFound    = "reservation_not_found"
	codeInvalidState           = "invalid_state"
	codeMissingPaymentMethod   = "missing_payment_method"
	codeGatewayFailure         = "gateway_failure"
	codeStorageFailure         = "storage_failure"
	codeUnavailable            = "unavailable"
	codeForbidden              = "forbidden"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Reasons []string `json:"reasons,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeDomainError maps a service error to its HTTP status and code.
// Storage failures win over whatever else is joined with them: the
// attempt could not be recorded.
func writeDomainError(w http.ResponseWriter, err error) {
	var denied *domain.PolicyDeniedError
	var gateway *domain.GatewayError

	switch {
	case errors.Is(err, domain.ErrStorage):
		writeError(w, http.StatusInternalServerError, codeStorageFailure, "storage failure")
	case errors.As(err, &denied):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   err.Error(),
			Code:    codePolicyDenied,
			Reasons: denied.Reasons,
		})
	case errors.Is(err, domain.ErrUserRequired):
		writeError(w, http.StatusBadRequest, codeUserRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrInvalidCurrency):
		writeError(w, http.StatusBadRequest, codeInvalidCurrency, err.Error())
	case errors.Is(err, domain.ErrInvalidPolicy):
		writeError(w, http.StatusBadRequest, codeInvalidPolicy, err.Error())
	case errors.Is(err, domain.ErrNoConsent):
		writeError(w, http.StatusForbidden, codeNoConsent, err.Error())
	case errors.Is(err, domain.ErrMissingScope):
		writeError(w, http.StatusForbidden, codeMissingScope, err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, codeInvalidState, err.Error())
	case errors.Is(err, domain.ErrMissingPaymentMethod):
		writeError(w, http.StatusUnprocessableEntity, codeMissingPaymentMethod, err.Error())
	case errors.As(err, &gateway):
		writeError(w, http.StatusBadGateway, codeGatewayFailure, gateway.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
