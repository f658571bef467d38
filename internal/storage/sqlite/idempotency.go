package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/autobook/internal/idempotency"
)

func (s *Store) HoldKey(ctx context.Context, key string) (string, bool, error) {
	var reservationID string
	err := s.queryRow(ctx, `SELECT reservation_id FROM hold_idempotency_keys WHERE key = ?`, key).Scan(&reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get hold key: %w", err)
	}
	return reservationID, true, nil
}

func (s *Store) PutHoldKey(ctx context.Context, key, reservationID string, at time.Time) (string, error) {
	result, err := s.exec(ctx, `
INSERT INTO hold_idempotency_keys (key, reservation_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT (key) DO NOTHING`, key, reservationID, toNanos(at))
	if err != nil {
		return "", fmt.Errorf("put hold key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return reservationID, nil
	}
	winner, _, err := s.HoldKey(ctx, key)
	return winner, err
}

func (s *Store) CaptureKey(ctx context.Context, key string) (idempotency.CaptureRecord, bool, error) {
	var (
		rec    idempotency.CaptureRecord
		result string
	)
	err := s.queryRow(ctx, `SELECT reservation_id, result FROM capture_idempotency_keys WHERE key = ?`, key).
		Scan(&rec.ReservationID, &result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.CaptureRecord{}, false, nil
		}
		return idempotency.CaptureRecord{}, false, fmt.Errorf("get capture key: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return idempotency.CaptureRecord{}, false, fmt.Errorf("decode capture result: %w", err)
	}
	return rec, true, nil
}

func (s *Store) PutCaptureKey(ctx context.Context, key string, rec idempotency.CaptureRecord, at time.Time) (idempotency.CaptureRecord, error) {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return idempotency.CaptureRecord{}, fmt.Errorf("encode capture result: %w", err)
	}
	result, err := s.exec(ctx, `
INSERT INTO capture_idempotency_keys (key, reservation_id, result, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO NOTHING`, key, rec.ReservationID, string(payload), toNanos(at))
	if err != nil {
		return idempotency.CaptureRecord{}, fmt.Errorf("put capture key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return rec, nil
	}
	winner, _, err := s.CaptureKey(ctx, key)
	return winner, err
}

func (s *Store) PurgeKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		for _, stmt := range []string{
			`DELETE FROM hold_idempotency_keys WHERE created_at < ?`,
			`DELETE FROM capture_idempotency_keys WHERE created_at < ?`,
		} {
			result, err := s.exec(txCtx, stmt, toNanos(cutoff))
			if err != nil {
				return fmt.Errorf("purge idempotency keys: %w", err)
			}
			n, _ := result.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}
