package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/ledger"
)

// AuditRepository is the append-only audit_events table. It never issues
// UPDATE or DELETE.
type AuditRepository struct {
	db
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db{pool: pool}}
}

func (r *AuditRepository) AppendEvent(ctx context.Context, evt domain.AuditEvent) (domain.AuditEvent, error) {
	reasons := evt.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("encode reasons: %w", err)
	}
	var detailsJSON []byte
	if evt.Details != nil {
		if detailsJSON, err = json.Marshal(evt.Details); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("encode details: %w", err)
		}
	}

	const stmt = `
INSERT INTO audit_events (id, created_at, actor, action, status, reservation_id, amount_minor, currency, vendor, reasons, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING seq`

	err = r.queryRow(ctx, stmt,
		evt.ID,
		evt.CreatedAt,
		evt.Actor,
		string(evt.Action),
		string(evt.Status),
		nullable(evt.ReservationID),
		evt.AmountMinor,
		nullable(evt.Currency),
		nullable(evt.Vendor),
		reasonsJSON,
		detailsJSON,
	).Scan(&evt.Seq)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	evt.Reasons = reasons
	return evt, nil
}

func (r *AuditRepository) ListEvents(ctx context.Context, f ledger.Filter) ([]domain.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}
	add("actor", f.Actor)
	add("action", string(f.Action))
	add("reservation_id", f.ReservationID)

	query := `
SELECT id, seq, created_at, actor, action, status, reservation_id, amount_minor, currency, vendor, reasons, details
FROM audit_events`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, ledger.NormalizeLimit(f.Limit))
	query += "\nORDER BY created_at DESC, seq DESC\nLIMIT $" + strconv.Itoa(len(args))

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			evt                      domain.AuditEvent
			action, status           string
			resID, currency, vendor  *string
			reasonsJSON, detailsJSON []byte
		)
		if err := rows.Scan(
			&evt.ID,
			&evt.Seq,
			&evt.CreatedAt,
			&evt.Actor,
			&action,
			&status,
			&resID,
			&evt.AmountMinor,
			&currency,
			&vendor,
			&reasonsJSON,
			&detailsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.CreatedAt = evt.CreatedAt.UTC()
		evt.Action = domain.Action(action)
		evt.Status = domain.AuditStatus(status)
		evt.ReservationID = deref(resID)
		evt.Currency = deref(currency)
		evt.Vendor = deref(vendor)
		if err := json.Unmarshal(reasonsJSON, &evt.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &evt.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		events = append(events, evt)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate audit events: %w", rows.Err())
	}
	return events, nil
}
