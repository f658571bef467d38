package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/idempotency"
	"github.com/cimillas/autobook/internal/payment"
	"github.com/cimillas/autobook/internal/storage/memory"
)

func TestRegistry_HoldKeysAreFirstWriteWins(t *testing.T) {
	reg := idempotency.NewRegistry(memory.NewStore(), clock.NewFixed(time.Now()))
	ctx := context.Background()

	if _, ok, err := reg.LookupHold(ctx, "k1"); err != nil || ok {
		t.Fatalf("expected unbound key, got ok=%v err=%v", ok, err)
	}
	bound, err := reg.RecordHold(ctx, "k1", "res_00001")
	if err != nil || bound != "res_00001" {
		t.Fatalf("expected res_00001, got %q (%v)", bound, err)
	}
	bound, err = reg.RecordHold(ctx, "k1", "res_00002")
	if err != nil || bound != "res_00001" {
		t.Fatalf("expected first binding to win, got %q (%v)", bound, err)
	}
	got, ok, err := reg.LookupHold(ctx, "k1")
	if err != nil || !ok || got != "res_00001" {
		t.Fatalf("expected res_00001, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestRegistry_EmptyKeyIsNeverBound(t *testing.T) {
	store := memory.NewStore()
	reg := idempotency.NewRegistry(store, clock.NewFixed(time.Now()))
	ctx := context.Background()

	if bound, err := reg.RecordHold(ctx, "", "res_00001"); err != nil || bound != "res_00001" {
		t.Fatalf("unexpected result %q (%v)", bound, err)
	}
	if _, ok, _ := store.HoldKey(ctx, ""); ok {
		t.Fatalf("expected empty key not stored")
	}
	if _, ok, _ := reg.LookupCapture(ctx, ""); ok {
		t.Fatalf("expected empty capture key to miss")
	}
}

func TestRegistry_CaptureRecordReplay(t *testing.T) {
	reg := idempotency.NewRegistry(memory.NewStore(), clock.NewFixed(time.Now()))
	ctx := context.Background()

	rec := idempotency.CaptureRecord{
		ReservationID: "res_00001",
		Result:        payment.CaptureResult{Status: payment.StatusCaptured, PaymentID: "pay_1", AuthorizationID: "auth_1"},
	}
	if _, err := reg.RecordCapture(ctx, "cap", rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	other := rec
	other.Result.PaymentID = "pay_2"
	winner, err := reg.RecordCapture(ctx, "cap", other)
	if err != nil || winner != rec {
		t.Fatalf("expected original record, got %+v (%v)", winner, err)
	}

	// Hold and capture namespaces are independent.
	if _, ok, _ := reg.LookupHold(ctx, "cap"); ok {
		t.Fatalf("expected capture key invisible to hold lookups")
	}
}

func TestRegistry_Purge(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewStepping(start, time.Hour)
	reg := idempotency.NewRegistry(memory.NewStore(), clk)
	ctx := context.Background()

	if _, err := reg.RecordHold(ctx, "old", "res_00001"); err != nil {
		t.Fatalf("record: %v", err)
	}
	for i := 0; i < 48; i++ {
		clk.Now()
	}
	if _, err := reg.RecordHold(ctx, "new", "res_00002"); err != nil {
		t.Fatalf("record: %v", err)
	}

	if n, err := reg.Purge(ctx, 0); err != nil || n != 0 {
		t.Fatalf("expected zero retention to keep keys, got %d (%v)", n, err)
	}
	n, err := reg.Purge(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected one purged key, got %d (%v)", n, err)
	}
	if _, ok, _ := reg.LookupHold(ctx, "old"); ok {
		t.Fatalf("expected old key purged")
	}
	if _, ok, _ := reg.LookupHold(ctx, "new"); !ok {
		t.Fatalf("expected new key kept")
	}
}

func TestRegistry_DoCollapsesConcurrentCallers(t *testing.T) {
	reg := idempotency.NewRegistry(memory.NewStore(), clock.NewFixed(time.Now()))

	var (
		calls   atomic.Int32
		joins   atomic.Int32
		release = make(chan struct{})
		started = make(chan struct{})
		once    sync.Once
		wg      sync.WaitGroup
	)

	run := func() {
		defer wg.Done()
		v, joined, err := reg.Do(idempotency.NamespaceCapture, "k", func() (any, error) {
			calls.Add(1)
			once.Do(func() { close(started) })
			<-release
			return "done", nil
		})
		if err != nil || v != "done" {
			t.Errorf("unexpected result %v (%v)", v, err)
		}
		if joined {
			joins.Add(1)
		}
	}

	wg.Add(1)
	go run()
	<-started

	const waiters = 4
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go run()
	}
	// Give the waiters time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected fn to run once, ran %d times", calls.Load())
	}
	if joins.Load() != waiters {
		t.Fatalf("expected %d joined callers, got %d", waiters, joins.Load())
	}
}

func TestRegistry_DoWithoutKeyRunsEveryTime(t *testing.T) {
	reg := idempotency.NewRegistry(memory.NewStore(), clock.NewFixed(time.Now()))
	var calls int
	for i := 0; i < 3; i++ {
		_, joined, _ := reg.Do(idempotency.NamespaceHold, "", func() (any, error) {
			calls++
			return nil, nil
		})
		if joined {
			t.Fatalf("expected keyless call not to join")
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
