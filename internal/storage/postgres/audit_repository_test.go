package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/ledger"
	"github.com/cimillas/autobook/internal/testutil"
)

func TestAuditRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewAuditRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	appendEvent := func(t *testing.T, ctx context.Context, evt domain.AuditEvent) domain.AuditEvent {
		t.Helper()
		evt.ID = uuid.NewString()
		stored, err := repo.AppendEvent(ctx, evt)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		return stored
	}

	t.Run("append assigns seq and round trips", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		amount := int64(25000)
		stored := appendEvent(t, ctx, domain.AuditEvent{
			CreatedAt:   base,
			Actor:       "user-1",
			Action:      domain.ActionProposed,
			Status:      domain.AuditDenied,
			AmountMinor: &amount,
			Currency:    "USD",
			Reasons:     []string{"amount exceeds cap"},
			Details:     map[string]any{"max_spend_minor": 20000},
		})
		if stored.Seq == 0 {
			t.Fatalf("expected seq assigned")
		}

		events, err := repo.ListEvents(ctx, ledger.Filter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		got := events[0]
		if got.AmountMinor == nil || *got.AmountMinor != amount || got.ReservationID != "" {
			t.Fatalf("unexpected event: %+v", got)
		}
		if !got.HasReason("amount exceeds cap") || got.Details["max_spend_minor"] != float64(20000) {
			t.Fatalf("unexpected reasons/details: %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Fatalf("expected created_at %v, got %v", base, got.CreatedAt)
		}
	})

	t.Run("list orders newest first and filters", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		appendEvent(t, ctx, domain.AuditEvent{CreatedAt: base, Actor: "u1", Action: domain.ActionHeld, Status: domain.AuditOK, ReservationID: "res_00001"})
		appendEvent(t, ctx, domain.AuditEvent{CreatedAt: base.Add(time.Second), Actor: "u2", Action: domain.ActionHeld, Status: domain.AuditOK, ReservationID: "res_00002"})
		// Same timestamp as the previous event: seq breaks the tie.
		appendEvent(t, ctx, domain.AuditEvent{CreatedAt: base.Add(time.Second), Actor: "u1", Action: domain.ActionApproved, Status: domain.AuditOK, ReservationID: "res_00001"})

		all, err := repo.ListEvents(ctx, ledger.Filter{Limit: 10})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 3 || all[0].Action != domain.ActionApproved || all[2].ReservationID != "res_00001" {
			t.Fatalf("unexpected order: %+v", all)
		}
		if all[0].Reasons == nil {
			t.Fatalf("expected empty reasons, not nil")
		}

		limited, _ := repo.ListEvents(ctx, ledger.Filter{Limit: 1})
		if len(limited) != 1 || limited[0].Action != domain.ActionApproved {
			t.Fatalf("unexpected limited result: %+v", limited)
		}

		filtered, _ := repo.ListEvents(ctx, ledger.Filter{Actor: "u1", Action: domain.ActionHeld})
		if len(filtered) != 1 || filtered[0].ReservationID != "res_00001" {
			t.Fatalf("unexpected filtered result: %+v", filtered)
		}

		byReservation, _ := repo.ListEvents(ctx, ledger.Filter{ReservationID: "res_00002"})
		if len(byReservation) != 1 || byReservation[0].Actor != "u2" {
			t.Fatalf("unexpected reservation filter result: %+v", byReservation)
		}
	})
}
