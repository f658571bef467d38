package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/autobook/internal/app"
	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/payment"
)

type ConsentSetter interface {
	SetConsent(ctx context.Context, in app.SetConsentInput) (domain.Consent, error)
}

type PaymentMethodStorer interface {
	StorePaymentMethod(ctx context.Context, in app.StorePaymentMethodInput) (payment.StoredMethod, error)
}

func HandleSetConsent(svc ConsentSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req consentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "user_id is required")
			return
		}
		consent, err := svc.SetConsent(r.Context(), app.SetConsentInput{
			UserID:        req.UserID,
			Scopes:        req.Scopes,
			OAuthProvider: req.OAuthProvider,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, consentResponse{
			UserID:        consent.UserID,
			Scopes:        consent.Scopes,
			OAuthProvider: consent.OAuthProvider,
			UpdatedAt:     consent.UpdatedAt,
		})
	}
}

// HandleStorePaymentMethod saves the user's gateway token. The token is
// never echoed back; only the masked label is.
func HandleStorePaymentMethod(svc PaymentMethodStorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentMethodRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" || req.GatewayToken == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "user_id and gateway_token are required")
			return
		}
		stored, err := svc.StorePaymentMethod(r.Context(), app.StorePaymentMethodInput{
			UserID:       req.UserID,
			Type:         req.Type,
			GatewayToken: req.GatewayToken,
			Last4:        req.Last4,
			Brand:        req.Brand,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentMethodResponse{
			UserID:    stored.UserID,
			Type:      stored.Method.Type,
			Label:     stored.Method.Label,
			Brand:     stored.Method.Brand,
			UpdatedAt: stored.UpdatedAt,
		})
	}
}

type consentRequest struct {
	UserID        string               `json:"user_id"`
	Scopes        domain.ConsentScopes `json:"scopes"`
	OAuthProvider string               `json:"oauth_provider"`
}

type consentResponse struct {
	UserID        string               `json:"user_id"`
	Scopes        domain.ConsentScopes `json:"scopes"`
	OAuthProvider string               `json:"oauth_provider,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type paymentMethodRequest struct {
	UserID       string `json:"user_id"`
	Type         string `json:"type"`
	GatewayToken string `json:"gateway_token"`
	Last4        string `json:"last4"`
	Brand        string `json:"brand"`
}

type paymentMethodResponse struct {
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	Brand     string    `json:"brand,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
