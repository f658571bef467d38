package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/payment"
)

func (s *Store) UpsertConsent(ctx context.Context, c domain.Consent) error {
	scopes, err := json.Marshal(c.Scopes)
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	_, err = s.exec(ctx, `
INSERT INTO consents (user_id, scopes, oauth_provider, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE
SET scopes = excluded.scopes, oauth_provider = excluded.oauth_provider, updated_at = excluded.updated_at`,
		c.UserID, string(scopes), c.OAuthProvider, toNanos(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert consent: %w", err)
	}
	return nil
}

func (s *Store) GetConsent(ctx context.Context, userID string) (*domain.Consent, error) {
	var (
		c         domain.Consent
		scopes    string
		updatedAt int64
	)
	err := s.queryRow(ctx, `SELECT user_id, scopes, oauth_provider, updated_at FROM consents WHERE user_id = ?`, userID).
		Scan(&c.UserID, &scopes, &c.OAuthProvider, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get consent: %w", err)
	}
	if err := json.Unmarshal([]byte(scopes), &c.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}

func (s *Store) UpsertPaymentMethod(ctx context.Context, m payment.StoredMethod) error {
	_, err := s.exec(ctx, `
INSERT INTO payment_methods (user_id, method_type, gateway_token, label, brand, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE
SET method_type = excluded.method_type, gateway_token = excluded.gateway_token,
	label = excluded.label, brand = excluded.brand, updated_at = excluded.updated_at`,
		m.UserID, m.Method.Type, m.Method.Token, m.Method.Label, m.Method.Brand, toNanos(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, userID string) (*payment.StoredMethod, error) {
	var (
		m         payment.StoredMethod
		updatedAt int64
	)
	err := s.queryRow(ctx, `
SELECT user_id, method_type, gateway_token, label, brand, updated_at
FROM payment_methods
WHERE user_id = ?`, userID).
		Scan(&m.UserID, &m.Method.Type, &m.Method.Token, &m.Method.Label, &m.Method.Brand, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	m.UpdatedAt = fromNanos(updatedAt)
	return &m, nil
}
