package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/autobook/internal/idempotency"
)

// IdempotencyRepository binds hold and capture keys. Bindings are
// first-write-wins: a conflicting insert leaves the existing row alone and
// the winner is read back.
type IdempotencyRepository struct {
	db
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{db: db{pool: pool}}
}

func (r *IdempotencyRepository) HoldKey(ctx context.Context, key string) (string, bool, error) {
	var reservationID string
	err := r.queryRow(ctx, `SELECT reservation_id FROM hold_idempotency_keys WHERE key = $1`, key).Scan(&reservationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get hold key: %w", err)
	}
	return reservationID, true, nil
}

func (r *IdempotencyRepository) PutHoldKey(ctx context.Context, key, reservationID string, at time.Time) (string, error) {
	const stmt = `
INSERT INTO hold_idempotency_keys (key, reservation_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`

	tag, err := r.exec(ctx, stmt, key, reservationID, at)
	if err != nil {
		return "", fmt.Errorf("put hold key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return reservationID, nil
	}
	winner, ok, err := r.HoldKey(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("put hold key: %s vanished after conflict", key)
	}
	return winner, nil
}

func (r *IdempotencyRepository) CaptureKey(ctx context.Context, key string) (idempotency.CaptureRecord, bool, error) {
	var (
		rec    idempotency.CaptureRecord
		result []byte
	)
	err := r.queryRow(ctx, `SELECT reservation_id, result FROM capture_idempotency_keys WHERE key = $1`, key).
		Scan(&rec.ReservationID, &result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.CaptureRecord{}, false, nil
		}
		return idempotency.CaptureRecord{}, false, fmt.Errorf("get capture key: %w", err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return idempotency.CaptureRecord{}, false, fmt.Errorf("decode capture result: %w", err)
	}
	return rec, true, nil
}

func (r *IdempotencyRepository) PutCaptureKey(ctx context.Context, key string, rec idempotency.CaptureRecord, at time.Time) (idempotency.CaptureRecord, error) {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return idempotency.CaptureRecord{}, fmt.Errorf("encode capture result: %w", err)
	}

	const stmt = `
INSERT INTO capture_idempotency_keys (key, reservation_id, result, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO NOTHING`

	tag, err := r.exec(ctx, stmt, key, rec.ReservationID, result, at)
	if err != nil {
		return idempotency.CaptureRecord{}, fmt.Errorf("put capture key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return rec, nil
	}
	winner, ok, err := r.CaptureKey(ctx, key)
	if err != nil {
		return idempotency.CaptureRecord{}, err
	}
	if !ok {
		return idempotency.CaptureRecord{}, fmt.Errorf("put capture key: %s vanished after conflict", key)
	}
	return winner, nil
}

func (r *IdempotencyRepository) PurgeKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		for _, stmt := range []string{
			`DELETE FROM hold_idempotency_keys WHERE created_at < $1`,
			`DELETE FROM capture_idempotency_keys WHERE created_at < $1`,
		} {
			tag, err := r.exec(txCtx, stmt, cutoff)
			if err != nil {
				return fmt.Errorf("purge idempotency keys: %w", err)
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
