package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/payment"
)

type AccountRepository struct {
	db
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db{pool: pool}}
}

func (r *AccountRepository) UpsertConsent(ctx context.Context, c domain.Consent) error {
	scopes, err := json.Marshal(c.Scopes)
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	const stmt = `
INSERT INTO consents (user_id, scopes, oauth_provider, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET scopes = EXCLUDED.scopes, oauth_provider = EXCLUDED.oauth_provider, updated_at = EXCLUDED.updated_at`
	if _, err := r.exec(ctx, stmt, c.UserID, scopes, c.OAuthProvider, c.UpdatedAt); err != nil {
		return fmt.Errorf("upsert consent: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetConsent(ctx context.Context, userID string) (*domain.Consent, error) {
	const query = `SELECT user_id, scopes, oauth_provider, updated_at FROM consents WHERE user_id = $1`

	var (
		c      domain.Consent
		scopes []byte
	)
	err := r.queryRow(ctx, query, userID).Scan(&c.UserID, &scopes, &c.OAuthProvider, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get consent: %w", err)
	}
	if err := json.Unmarshal(scopes, &c.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *AccountRepository) UpsertPaymentMethod(ctx context.Context, m payment.StoredMethod) error {
	const stmt = `
INSERT INTO payment_methods (user_id, method_type, gateway_token, label, brand, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE
SET method_type = EXCLUDED.method_type, gateway_token = EXCLUDED.gateway_token,
	label = EXCLUDED.label, brand = EXCLUDED.brand, updated_at = EXCLUDED.updated_at`
	_, err := r.exec(ctx, stmt, m.UserID, m.Method.Type, m.Method.Token, m.Method.Label, m.Method.Brand, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetPaymentMethod(ctx context.Context, userID string) (*payment.StoredMethod, error) {
	const query = `
SELECT user_id, method_type, gateway_token, label, brand, updated_at
FROM payment_methods
WHERE user_id = $1`

	var m payment.StoredMethod
	err := r.queryRow(ctx, query, userID).
		Scan(&m.UserID, &m.Method.Type, &m.Method.Token, &m.Method.Label, &m.Method.Brand, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
