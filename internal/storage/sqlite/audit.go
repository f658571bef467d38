package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/ledger"
)

func (s *Store) AppendEvent(ctx context.Context, evt domain.AuditEvent) (domain.AuditEvent, error) {
	if evt.Reasons == nil {
		evt.Reasons = []string{}
	}
	reasons, err := json.Marshal(evt.Reasons)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("encode reasons: %w", err)
	}
	var details sql.NullString
	if evt.Details != nil {
		b, err := json.Marshal(evt.Details)
		if err != nil {
			return domain.AuditEvent{}, fmt.Errorf("encode details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	var amount sql.NullInt64
	if evt.AmountMinor != nil {
		amount = sql.NullInt64{Int64: *evt.AmountMinor, Valid: true}
	}

	result, err := s.exec(ctx, `
INSERT INTO audit_events (id, created_at, actor, action, status, reservation_id, amount_minor, currency, vendor, reasons, details)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID,
		toNanos(evt.CreatedAt),
		evt.Actor,
		string(evt.Action),
		string(evt.Status),
		nullString(evt.ReservationID),
		amount,
		nullString(evt.Currency),
		nullString(evt.Vendor),
		string(reasons),
		details,
	)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	if evt.Seq, err = result.LastInsertId(); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	return evt, nil
}

func (s *Store) ListEvents(ctx context.Context, f ledger.Filter) ([]domain.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.ReservationID != "" {
		where = append(where, "reservation_id = ?")
		args = append(args, f.ReservationID)
	}

	query := `
SELECT seq, id, created_at, actor, action, status, reservation_id, amount_minor, currency, vendor, reasons, details
FROM audit_events`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY created_at DESC, seq DESC\nLIMIT ?"
	args = append(args, ledger.NormalizeLimit(f.Limit))

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			evt                     domain.AuditEvent
			createdAt               int64
			action, status, reasons string
			resID, currency, vendor sql.NullString
			details                 sql.NullString
			amount                  sql.NullInt64
		)
		if err := rows.Scan(&evt.Seq, &evt.ID, &createdAt, &evt.Actor, &action, &status,
			&resID, &amount, &currency, &vendor, &reasons, &details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.CreatedAt = fromNanos(createdAt)
		evt.Action = domain.Action(action)
		evt.Status = domain.AuditStatus(status)
		evt.ReservationID = resID.String
		evt.Currency = currency.String
		evt.Vendor = vendor.String
		if amount.Valid {
			v := amount.Int64
			evt.AmountMinor = &v
		}
		if err := json.Unmarshal([]byte(reasons), &evt.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons: %w", err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &evt.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
