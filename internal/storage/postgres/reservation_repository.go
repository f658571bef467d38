package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/autobook/internal/domain"
)

type ReservationRepository struct {
	db
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{db: db{pool: pool}}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) NextReservationID(ctx context.Context) (string, error) {
	var seq int64
	if err := r.queryRow(ctx, `SELECT nextval('reservation_id_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next reservation id: %w", err)
	}
	return domain.FormatReservationID(seq), nil
}

func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, user_id, amount_minor, currency, vendor, require_two_step, state, authorization_id, payment_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.UserID,
		res.AmountMinor,
		res.Currency,
		res.Vendor,
		res.RequireTwoStep,
		string(res.State),
		nullable(res.AuthorizationID),
		nullable(res.PaymentID),
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create reservation %s: already exists", res.ID)
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

const selectReservation = `
SELECT id, user_id, amount_minor, currency, vendor, require_two_step, state, authorization_id, payment_id, created_at, updated_at
FROM reservations
WHERE id = $1`

func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	return r.get(ctx, selectReservation, id)
}

// GetReservationForUpdate locks the row until the surrounding transaction
// ends, so concurrent transitions on one reservation run one at a time
// across processes.
func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	return r.get(ctx, selectReservation+` FOR UPDATE`, id)
}

func (r *ReservationRepository) get(ctx context.Context, query, id string) (domain.Reservation, error) {
	var (
		res        domain.Reservation
		state      string
		authID     *string
		paymentID  *string
		vendorName *string
	)
	err := r.queryRow(ctx, query, id).Scan(
		&res.ID,
		&res.UserID,
		&res.AmountMinor,
		&res.Currency,
		&vendorName,
		&res.RequireTwoStep,
		&state,
		&authID,
		&paymentID,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	res.Vendor = vendorName
	res.State = domain.State(state)
	res.AuthorizationID = deref(authID)
	res.PaymentID = deref(paymentID)
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return res, nil
}

// UpdateReservation writes the mutable columns only while the stored state
// is still from.
func (r *ReservationRepository) UpdateReservation(ctx context.Context, res domain.Reservation, from domain.State) error {
	const stmt = `
UPDATE reservations
SET state = $2, authorization_id = $3, payment_id = $4, updated_at = $5
WHERE id = $1 AND state = $6`

	tag, err := r.exec(ctx, stmt,
		res.ID,
		string(res.State),
		nullable(res.AuthorizationID),
		nullable(res.PaymentID),
		res.UpdatedAt,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetReservation(ctx, res.ID)
	if err != nil {
		return err
	}
	return &domain.InvalidStateError{Current: current.State, Expected: []domain.State{from}}
}
