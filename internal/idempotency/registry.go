// Package idempotency maps caller-supplied keys to the outcome first
// produced for them. Hold and capture keys live in separate namespaces.
//
// A key is bound once and never overwritten. Concurrent callers bearing the
// same key are collapsed so that only one of them runs the effectful work;
// the others wait and receive the same result.
package idempotency

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/payment"
)

type Namespace string

const (
	NamespaceHold    Namespace = "hold"
	NamespaceCapture Namespace = "capture"
)

// CaptureRecord is the replayable outcome of a capture.
type CaptureRecord struct {
	ReservationID string                `json:"reservation_id"`
	Result        payment.CaptureResult `json:"result"`
}

// Store persists key bindings. Put methods are first-write-wins and return
// the value that ended up bound to the key.
type Store interface {
	HoldKey(ctx context.Context, key string) (string, bool, error)
	PutHoldKey(ctx context.Context, key, reservationID string, at time.Time) (string, error)
	CaptureKey(ctx context.Context, key string) (CaptureRecord, bool, error)
	PutCaptureKey(ctx context.Context, key string, rec CaptureRecord, at time.Time) (CaptureRecord, error)
	PurgeKeysBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Registry struct {
	store   Store
	clock   clock.Clock
	hold    singleflight.Group
	capture singleflight.Group
}

func NewRegistry(store Store, clk clock.Clock) *Registry {
	return &Registry{store: store, clock: clk}
}

// LookupHold returns the reservation bound to key. An empty key is never
// looked up.
func (r *Registry) LookupHold(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	return r.store.HoldKey(ctx, key)
}

// RecordHold binds key to reservationID unless it is already bound, and
// returns the bound reservation.
func (r *Registry) RecordHold(ctx context.Context, key, reservationID string) (string, error) {
	if key == "" {
		return reservationID, nil
	}
	return r.store.PutHoldKey(ctx, key, reservationID, r.clock.Now())
}

func (r *Registry) LookupCapture(ctx context.Context, key string) (CaptureRecord, bool, error) {
	if key == "" {
		return CaptureRecord{}, false, nil
	}
	return r.store.CaptureKey(ctx, key)
}

func (r *Registry) RecordCapture(ctx context.Context, key string, rec CaptureRecord) (CaptureRecord, error) {
	if key == "" {
		return rec, nil
	}
	return r.store.PutCaptureKey(ctx, key, rec, r.clock.Now())
}

// Purge drops bindings older than retention. Zero retention keeps keys forever.
func (r *Registry) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return r.store.PurgeKeysBefore(ctx, r.clock.Now().Add(-retention))
}

type flight struct {
	owner *int
	value any
}

// Do runs fn at most once at a time per (ns, key). Callers that arrive
// while fn is running block and share its result; joined reports whether
// this caller received a result produced by another caller. Without a key
// fn runs directly.
func (r *Registry) Do(ns Namespace, key string, fn func() (any, error)) (v any, joined bool, err error) {
	if key == "" {
		v, err = fn()
		return v, false, err
	}

	owner := new(int)
	res, err, _ := r.group(ns).Do(key, func() (any, error) {
		value, err := fn()
		return flight{owner: owner, value: value}, err
	})
	f, _ := res.(flight)
	return f.value, f.owner != owner, err
}

func (r *Registry) group(ns Namespace) *singleflight.Group {
	if ns == NamespaceCapture {
		return &r.capture
	}
	return &r.hold
}
