// Package memory keeps reservations, audit events, idempotency keys and
// accounts in process memory. It serves tests and single-process local
// runs; WithTx provides no rollback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/idempotency"
	"github.com/cimillas/autobook/internal/ledger"
	"github.com/cimillas/autobook/internal/payment"
)

type holdBinding struct {
	reservationID string
	createdAt     time.Time
}

type captureBinding struct {
	rec       idempotency.CaptureRecord
	createdAt time.Time
}

type Store struct {
	mu           sync.RWMutex
	seq          int64
	eventSeq     int64
	reservations map[string]domain.Reservation
	events       []domain.AuditEvent
	holdKeys     map[string]holdBinding
	captureKeys  map[string]captureBinding
	consents     map[string]domain.Consent
	methods      map[string]payment.StoredMethod
}

func NewStore() *Store {
	return &Store{
		reservations: make(map[string]domain.Reservation),
		holdKeys:     make(map[string]holdBinding),
		captureKeys:  make(map[string]captureBinding),
		consents:     make(map[string]domain.Consent),
		methods:      make(map[string]payment.StoredMethod),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) NextReservationID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return domain.FormatReservationID(s.seq), nil
}

func (s *Store) CreateReservation(_ context.Context, res domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reservations[res.ID]; exists {
		return domain.StorageError("create reservation", errDuplicate(res.ID))
	}
	s.reservations[res.ID] = res
	return nil
}

func (s *Store) GetReservation(_ context.Context, id string) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

// GetReservationForUpdate is a plain read; callers serialize per reservation.
func (s *Store) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	return s.GetReservation(ctx, id)
}

func (s *Store) UpdateReservation(_ context.Context, res domain.Reservation, from domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.reservations[res.ID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if current.State != from {
		return &domain.InvalidStateError{Current: current.State, Expected: []domain.State{from}}
	}
	s.reservations[res.ID] = res
	return nil
}

// Reservations returns a snapshot of every stored reservation.
func (s *Store) Reservations() []domain.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AppendEvent(_ context.Context, evt domain.AuditEvent) (domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventSeq++
	evt.Seq = s.eventSeq
	evt.Reasons = append([]string(nil), evt.Reasons...)
	s.events = append(s.events, evt)
	return evt, nil
}

func (s *Store) ListEvents(_ context.Context, f ledger.Filter) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	matched := make([]domain.AuditEvent, 0, len(s.events))
	for _, evt := range s.events {
		if f.Actor != "" && evt.Actor != f.Actor {
			continue
		}
		if f.Action != "" && evt.Action != f.Action {
			continue
		}
		if f.ReservationID != "" && evt.ReservationID != f.ReservationID {
			continue
		}
		matched = append(matched, evt)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Seq > matched[j].Seq
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *Store) HoldKey(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.holdKeys[key]
	return b.reservationID, ok, nil
}

func (s *Store) PutHoldKey(_ context.Context, key, reservationID string, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.holdKeys[key]; ok {
		return b.reservationID, nil
	}
	s.holdKeys[key] = holdBinding{reservationID: reservationID, createdAt: at}
	return reservationID, nil
}

func (s *Store) CaptureKey(_ context.Context, key string) (idempotency.CaptureRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.captureKeys[key]
	return b.rec, ok, nil
}

func (s *Store) PutCaptureKey(_ context.Context, key string, rec idempotency.CaptureRecord, at time.Time) (idempotency.CaptureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.captureKeys[key]; ok {
		return b.rec, nil
	}
	s.captureKeys[key] = captureBinding{rec: rec, createdAt: at}
	return rec, nil
}

func (s *Store) PurgeKeysBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, b := range s.holdKeys {
		if b.createdAt.Before(cutoff) {
			delete(s.holdKeys, k)
			n++
		}
	}
	for k, b := range s.captureKeys {
		if b.createdAt.Before(cutoff) {
			delete(s.captureKeys, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertConsent(_ context.Context, c domain.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[c.UserID] = c
	return nil
}

func (s *Store) GetConsent(_ context.Context, userID string) (*domain.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) UpsertPaymentMethod(_ context.Context, m payment.StoredMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[m.UserID] = m
	return nil
}

func (s *Store) GetPaymentMethod(_ context.Context, userID string) (*payment.StoredMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

type errDuplicate string

func (e errDuplicate) Error() string {
	return "reservation " + string(e) + " already exists"
}
