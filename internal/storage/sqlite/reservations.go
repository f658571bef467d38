package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cimillas/autobook/internal/domain"
)

func (s *Store) NextReservationID(ctx context.Context) (string, error) {
	result, err := s.exec(ctx, `INSERT INTO reservation_ids DEFAULT VALUES`)
	if err != nil {
		return "", fmt.Errorf("next reservation id: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("next reservation id: %w", err)
	}
	return domain.FormatReservationID(seq), nil
}

func (s *Store) CreateReservation(ctx context.Context, res domain.Reservation) error {
	var vendor sql.NullString
	if res.Vendor != nil {
		vendor = sql.NullString{String: *res.Vendor, Valid: true}
	}
	_, err := s.exec(ctx, `
INSERT INTO reservations (id, user_id, amount_minor, currency, vendor, require_two_step, state, authorization_id, payment_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.UserID,
		res.AmountMinor,
		res.Currency,
		vendor,
		res.RequireTwoStep,
		string(res.State),
		nullString(res.AuthorizationID),
		nullString(res.PaymentID),
		toNanos(res.CreatedAt),
		toNanos(res.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	var (
		res                 domain.Reservation
		state               string
		vendor, auth, pay   sql.NullString
		createdAt, updateAt int64
	)
	err := s.queryRow(ctx, `
SELECT id, user_id, amount_minor, currency, vendor, require_two_step, state, authorization_id, payment_id, created_at, updated_at
FROM reservations
WHERE id = ?`, id).Scan(
		&res.ID,
		&res.UserID,
		&res.AmountMinor,
		&res.Currency,
		&vendor,
		&res.RequireTwoStep,
		&state,
		&auth,
		&pay,
		&createdAt,
		&updateAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	if vendor.Valid {
		v := vendor.String
		res.Vendor = &v
	}
	res.State = domain.State(state)
	res.AuthorizationID = auth.String
	res.PaymentID = pay.String
	res.CreatedAt = fromNanos(createdAt)
	res.UpdatedAt = fromNanos(updateAt)
	return res, nil
}

// GetReservationForUpdate is a plain read: the single connection already
// serializes transactions.
func (s *Store) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	return s.GetReservation(ctx, id)
}

func (s *Store) UpdateReservation(ctx context.Context, res domain.Reservation, from domain.State) error {
	result, err := s.exec(ctx, `
UPDATE reservations
SET state = ?, authorization_id = ?, payment_id = ?, updated_at = ?
WHERE id = ? AND state = ?`,
		string(res.State),
		nullString(res.AuthorizationID),
		nullString(res.PaymentID),
		toNanos(res.UpdatedAt),
		res.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	current, err := s.GetReservation(ctx, res.ID)
	if err != nil {
		return err
	}
	return &domain.InvalidStateError{Current: current.State, Expected: []domain.State{from}}
}
