// Package ledger is the append-only audit trail of every booking decision
// and state transition. Events are never updated or deleted; a failed
// append is returned to the caller as a storage failure.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/domain"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter selects events by exact match. Empty fields match everything.
type Filter struct {
	Limit         int
	Actor         string
	Action        domain.Action
	ReservationID string
}

// Store persists events. AppendEvent assigns Seq; ListEvents returns the
// newest first, ordered by (created_at, seq) descending.
type Store interface {
	AppendEvent(ctx context.Context, evt domain.AuditEvent) (domain.AuditEvent, error)
	ListEvents(ctx context.Context, f Filter) ([]domain.AuditEvent, error)
}

type Ledger struct {
	store Store
	clock clock.Clock
}

func New(store Store, clk clock.Clock) *Ledger {
	return &Ledger{store: store, clock: clk}
}

// Append stamps evt with a fresh id and the current UTC time and writes it.
func (l *Ledger) Append(ctx context.Context, evt domain.AuditEvent) (domain.AuditEvent, error) {
	if !evt.Action.Valid() {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: unknown action %q", evt.Action)
	}
	if !evt.Status.Valid() {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: unknown status %q", evt.Status)
	}
	if evt.Actor == "" {
		evt.Actor = "system"
	}
	evt.ID = uuid.NewString()
	evt.CreatedAt = l.clock.Now().UTC()

	stored, err := l.store.AppendEvent(ctx, evt)
	if err != nil {
		return domain.AuditEvent{}, domain.StorageError("append audit event", err)
	}
	return stored, nil
}

// ListRecent returns matching events, most recent first.
func (l *Ledger) ListRecent(ctx context.Context, f Filter) ([]domain.AuditEvent, error) {
	f.Limit = NormalizeLimit(f.Limit)
	events, err := l.store.ListEvents(ctx, f)
	if err != nil {
		return nil, domain.StorageError("list audit events", err)
	}
	return events, nil
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
