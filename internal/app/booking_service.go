package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/idempotency"
	"github.com/cimillas/autobook/internal/ledger"
	"github.com/cimillas/autobook/internal/payment"
	"github.com/cimillas/autobook/internal/policy"
)

type BookingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	NextReservationID(ctx context.Context) (string, error)
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	// UpdateReservation writes res only if the stored state is still from.
	UpdateReservation(ctx context.Context, res domain.Reservation, from domain.State) error
}

type ConsentProvider interface {
	Consent(ctx context.Context, userID string) (domain.Consent, bool, error)
}

type MethodResolver interface {
	PaymentMethod(ctx context.Context, userID string) (payment.Method, bool, error)
}

// BookingService drives reservations through hold, approve and capture.
// Every transition attempt, successful or not, leaves one audit event.
type BookingService struct {
	repo     BookingRepository
	registry *idempotency.Registry
	audit    *ledger.Ledger
	consents ConsentProvider
	methods  MethodResolver
	gateway  payment.Gateway
	clock    clock.Clock
	logger   *slog.Logger
	locks    *keyedMutex
}

type BookingServiceOption func(*BookingService)

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewBookingService(
	repo BookingRepository,
	registry *idempotency.Registry,
	audit *ledger.Ledger,
	consents ConsentProvider,
	methods MethodResolver,
	gateway payment.Gateway,
	clk clock.Clock,
	opts ...BookingServiceOption,
) *BookingService {
	svc := &BookingService{
		repo:     repo,
		registry: registry,
		audit:    audit,
		consents: consents,
		methods:  methods,
		gateway:  gateway,
		clock:    clk,
		logger:   slog.Default(),
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type HoldInput struct {
	UserID         string
	AmountMinor    int64
	Currency       string
	Vendor         *string
	Policy         domain.Policy
	IdempotencyKey string
}

type HoldResult struct {
	Status        domain.State
	ReservationID string
	Reasons       []string
	Idempotent    bool
}

// ProposeHold checks consent, replays a known idempotency key, evaluates
// policy and, when allowed, creates a HELD reservation.
func (s *BookingService) ProposeHold(ctx context.Context, in HoldInput) (HoldResult, error) {
	if in.UserID == "" {
		return HoldResult{}, domain.ErrUserRequired
	}

	if _, ok, err := s.consents.Consent(ctx, in.UserID); err != nil {
		return HoldResult{}, domain.StorageError("load consent", err)
	} else if !ok {
		evt := holdEvent(in, domain.ActionProposed, domain.AuditError, "", []string{domain.ReasonNoConsent})
		return HoldResult{Status: domain.StateError, Reasons: evt.Reasons}, s.fail(ctx, evt, domain.ErrNoConsent)
	}

	v, joined, err := s.registry.Do(idempotency.NamespaceHold, in.IdempotencyKey, func() (any, error) {
		return s.hold(ctx, in)
	})
	res, _ := v.(HoldResult)
	if !joined {
		return res, err
	}
	if err != nil {
		return res, s.joinedHoldFailure(ctx, in, res, err)
	}
	return s.replayHold(ctx, in, res.ReservationID)
}

// joinedHoldFailure records the caller's own attempt when it shared a
// flight that was denied or rejected. Storage failures were never
// recorded by the leader either.
func (s *BookingService) joinedHoldFailure(ctx context.Context, in HoldInput, res HoldResult, cause error) error {
	var evt domain.AuditEvent
	switch res.Status {
	case domain.StateDenied:
		evt = holdEvent(in, domain.ActionProposed, domain.AuditDenied, "", res.Reasons)
		evt.Details = policyDetails(in.Policy)
	case domain.StateError:
		evt = holdEvent(in, domain.ActionProposed, domain.AuditError, "", res.Reasons)
	default:
		return cause
	}
	return s.fail(ctx, evt, cause)
}

// errHoldKeyTaken reports that another writer bound the idempotency key
// first; the local reservation is rolled back and the winner replayed.
type errHoldKeyTaken struct {
	reservationID string
}

func (e *errHoldKeyTaken) Error() string {
	return "idempotency key bound to " + e.reservationID
}

func (s *BookingService) hold(ctx context.Context, in HoldInput) (HoldResult, error) {
	existing, ok, err := s.registry.LookupHold(ctx, in.IdempotencyKey)
	if err != nil {
		return HoldResult{}, domain.StorageError("lookup hold key", err)
	}
	if ok {
		return s.replayHold(ctx, in, existing)
	}

	if err := validateHold(&in); err != nil {
		evt := holdEvent(in, domain.ActionProposed, domain.AuditError, "", []string{err.Error()})
		return HoldResult{Status: domain.StateError, Reasons: evt.Reasons}, s.fail(ctx, evt, err)
	}

	decision := policy.Evaluate(in.AmountMinor, in.Currency, in.Vendor, in.Policy)
	if !decision.Allowed {
		evt := holdEvent(in, domain.ActionProposed, domain.AuditDenied, "", decision.Reasons)
		evt.Details = policyDetails(in.Policy)
		s.logger.InfoContext(ctx, "hold denied",
			slog.String("user_id", in.UserID),
			slog.Any("reasons", decision.Reasons),
		)
		return HoldResult{Status: domain.StateDenied, Reasons: decision.Reasons},
			s.fail(ctx, evt, &domain.PolicyDeniedError{Reasons: decision.Reasons})
	}

	now := s.clock.Now()
	var result HoldResult
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		id, err := s.repo.NextReservationID(txCtx)
		if err != nil {
			return domain.StorageError("allocate reservation id", err)
		}
		res := domain.Reservation{
			ID:             id,
			UserID:         in.UserID,
			AmountMinor:    in.AmountMinor,
			Currency:       in.Currency,
			Vendor:         in.Vendor,
			RequireTwoStep: in.Policy.RequireTwoStepPayment,
			State:          domain.StateHeld,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			return domain.StorageError("create reservation", err)
		}

		bound, err := s.registry.RecordHold(txCtx, in.IdempotencyKey, id)
		if err != nil {
			return domain.StorageError("record hold key", err)
		}
		if bound != id {
			return &errHoldKeyTaken{reservationID: bound}
		}

		if _, err := s.audit.Append(txCtx, holdEvent(in, domain.ActionHeld, domain.AuditOK, id, nil)); err != nil {
			return err
		}
		result = HoldResult{Status: domain.StateHeld, ReservationID: id}
		return nil
	})
	if err != nil {
		var taken *errHoldKeyTaken
		if errors.As(err, &taken) {
			return s.replayHold(ctx, in, taken.reservationID)
		}
		return HoldResult{}, err
	}

	s.logger.InfoContext(ctx, "reservation held",
		slog.String("reservation_id", result.ReservationID),
		slog.String("user_id", in.UserID),
		slog.Int64("amount_minor", in.AmountMinor),
		slog.String("currency", in.Currency),
	)
	return result, nil
}

func (s *BookingService) replayHold(ctx context.Context, in HoldInput, reservationID string) (HoldResult, error) {
	evt := holdEvent(in, domain.ActionHeld, domain.AuditOK, reservationID, []string{domain.ReasonIdempotentReturn})
	if _, err := s.audit.Append(ctx, evt); err != nil {
		return HoldResult{}, err
	}
	return HoldResult{Status: domain.StateHeld, ReservationID: reservationID, Idempotent: true}, nil
}

func validateHold(in *HoldInput) error {
	if in.AmountMinor < 0 {
		return domain.ErrInvalidAmount
	}
	currency, err := domain.NormalizeCurrency(in.Currency)
	if err != nil {
		return err
	}
	in.Currency = currency
	return in.Policy.Validate()
}

// Approve moves a HELD reservation to APPROVED. Approving an APPROVED
// reservation is a no-op; any other state is rejected.
func (s *BookingService) Approve(ctx context.Context, reservationID string) (domain.Reservation, error) {
	unlock, err := s.locks.Lock(ctx, reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer unlock()

	var current domain.Reservation
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return wrapStorage("get reservation", err)
		}
		current = res

		next, err := domain.Transition(res.State, domain.EventApprove)
		if err != nil {
			return err
		}
		if next == res.State {
			return nil
		}

		from := res.State
		res.State = next
		res.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateReservation(txCtx, res, from); err != nil {
			return wrapStorage("update reservation", err)
		}
		if _, err := s.audit.Append(txCtx, reservationEvent(res, res.UserID, domain.ActionApproved, domain.AuditOK, nil)); err != nil {
			return err
		}
		current = res
		return nil
	})
	if err != nil {
		evt := reservationEvent(current, current.UserID, domain.ActionApproved, domain.AuditError, []string{err.Error()})
		evt.ReservationID = reservationID
		return domain.Reservation{}, s.fail(ctx, evt, err)
	}
	return current, nil
}

type CaptureInput struct {
	UserID         string
	ReservationID  string
	IdempotencyKey string
}

type CaptureResult struct {
	ReservationID string
	Payment       payment.CaptureResult
	Idempotent    bool
}

// Capture authorizes and captures payment for an APPROVED reservation.
// A known idempotency key replays the recorded result without touching
// the reservation, the gateway or the ledger.
func (s *BookingService) Capture(ctx context.Context, in CaptureInput) (CaptureResult, error) {
	if err := s.checkPaymentConsent(ctx, in.UserID, in.ReservationID, domain.ActionCaptured); err != nil {
		return CaptureResult{}, err
	}

	v, joined, err := s.registry.Do(idempotency.NamespaceCapture, in.IdempotencyKey, func() (any, error) {
		return s.capture(ctx, in)
	})
	res, _ := v.(CaptureResult)
	if err != nil {
		if joined {
			return CaptureResult{}, s.joinedCaptureFailure(ctx, in, err)
		}
		return CaptureResult{}, err
	}
	if joined {
		res.Idempotent = true
	}
	return res, nil
}

// joinedCaptureFailure records the caller's own failed attempt after it
// shared a flight that failed.
func (s *BookingService) joinedCaptureFailure(ctx context.Context, in CaptureInput, cause error) error {
	if errors.Is(cause, domain.ErrStorage) {
		return cause
	}
	evt := domain.AuditEvent{
		Actor:         in.UserID,
		Action:        domain.ActionCaptured,
		Status:        domain.AuditError,
		ReservationID: in.ReservationID,
		Reasons:       []string{cause.Error()},
	}
	var gwErr *domain.GatewayError
	if errors.As(cause, &gwErr) {
		if gwErr.Op == "authorize" {
			evt.Action = domain.ActionAuthorized
		}
		evt.Details = gwErr.Details
	}
	return s.fail(context.WithoutCancel(ctx), evt, cause)
}

func (s *BookingService) checkPaymentConsent(ctx context.Context, userID, reservationID string, action domain.Action) error {
	if userID == "" {
		return domain.ErrUserRequired
	}
	consent, ok, err := s.consents.Consent(ctx, userID)
	if err != nil {
		return domain.StorageError("load consent", err)
	}
	if !ok {
		evt := domain.AuditEvent{Actor: userID, Action: action, Status: domain.AuditError, ReservationID: reservationID, Reasons: []string{domain.ReasonNoConsent}}
		return s.fail(ctx, evt, domain.ErrNoConsent)
	}
	if !consent.Scopes.PaymentProcessing {
		evt := domain.AuditEvent{Actor: userID, Action: action, Status: domain.AuditError, ReservationID: reservationID, Reasons: []string{domain.ReasonMissingScope}}
		return s.fail(ctx, evt, domain.ErrMissingScope)
	}
	return nil
}

func (s *BookingService) capture(ctx context.Context, in CaptureInput) (CaptureResult, error) {
	if rec, ok, err := s.registry.LookupCapture(ctx, in.IdempotencyKey); err != nil {
		return CaptureResult{}, domain.StorageError("lookup capture key", err)
	} else if ok {
		return CaptureResult{ReservationID: rec.ReservationID, Payment: rec.Result, Idempotent: true}, nil
	}

	unlock, err := s.locks.Lock(ctx, in.ReservationID)
	if err != nil {
		return CaptureResult{}, err
	}
	defer unlock()

	// Once the gateway is involved the call runs to completion.
	ctx = context.WithoutCancel(ctx)

	var (
		result  CaptureResult
		current domain.Reservation
		failure *domain.AuditEvent
	)
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, in.ReservationID)
		if err != nil {
			return wrapStorage("get reservation", err)
		}
		current = res
		// A writer in another process may have captured under this key
		// while the row lock was held.
		if rec, ok, err := s.registry.LookupCapture(txCtx, in.IdempotencyKey); err != nil {
			return domain.StorageError("lookup capture key", err)
		} else if ok {
			result = CaptureResult{ReservationID: rec.ReservationID, Payment: rec.Result, Idempotent: true}
			return nil
		}
		next, err := domain.Transition(res.State, domain.EventCapture)
		if err != nil {
			return err
		}

		method, ok, err := s.methods.PaymentMethod(txCtx, in.UserID)
		if err != nil {
			return domain.StorageError("resolve payment method", err)
		}
		if !ok {
			return domain.ErrMissingPaymentMethod
		}

		auth, err := s.gateway.Authorize(txCtx, res.AmountMinor, res.Currency, method, map[string]any{
			"user_id":        in.UserID,
			"reservation_id": res.ID,
			"vendor":         res.VendorName(),
		})
		if err != nil || auth.Status != payment.StatusAuthorized {
			gwErr := &domain.GatewayError{Op: "authorize", Status: auth.Status, Details: authorizationDetails(auth), Err: err}
			evt := reservationEvent(res, in.UserID, domain.ActionAuthorized, domain.AuditError, []string{gwErr.Error()})
			evt.Details = gwErr.Details
			failure = &evt
			return gwErr
		}

		captured, err := s.gateway.Capture(txCtx, auth.AuthorizationID)
		if err != nil || captured.Status != payment.StatusCaptured {
			gwErr := &domain.GatewayError{
				Op:      "capture",
				Status:  captured.Status,
				Details: map[string]any{"authorization_id": auth.AuthorizationID, "status": captured.Status},
				Err:     err,
			}
			evt := reservationEvent(res, in.UserID, domain.ActionCaptured, domain.AuditError, []string{gwErr.Error()})
			evt.Details = gwErr.Details
			failure = &evt
			return gwErr
		}

		from := res.State
		res.State = next
		res.AuthorizationID = auth.AuthorizationID
		res.PaymentID = captured.PaymentID
		res.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateReservation(txCtx, res, from); err != nil {
			return s.unrecorded(ctx, res, captured, wrapStorage("update reservation", err))
		}

		evt := reservationEvent(res, in.UserID, domain.ActionCaptured, domain.AuditOK, nil)
		evt.Details = map[string]any{"payment_id": captured.PaymentID, "authorization_id": auth.AuthorizationID}
		if _, err := s.audit.Append(txCtx, evt); err != nil {
			return s.unrecorded(ctx, res, captured, err)
		}

		winner, err := s.registry.RecordCapture(txCtx, in.IdempotencyKey, idempotency.CaptureRecord{ReservationID: res.ID, Result: captured})
		if err != nil {
			return s.unrecorded(ctx, res, captured, domain.StorageError("record capture key", err))
		}

		result = CaptureResult{ReservationID: winner.ReservationID, Payment: winner.Result}
		return nil
	})
	if err != nil {
		evt := reservationEvent(current, in.UserID, domain.ActionCaptured, domain.AuditError, []string{err.Error()})
		evt.ReservationID = in.ReservationID
		if failure != nil {
			evt = *failure
		}
		return CaptureResult{}, s.fail(ctx, evt, err)
	}

	if result.Idempotent {
		return result, nil
	}
	s.logger.InfoContext(ctx, "reservation captured",
		slog.String("reservation_id", result.ReservationID),
		slog.String("payment_id", result.Payment.PaymentID),
	)
	return result, nil
}

// unrecorded logs a payment that moved money but could not be persisted.
func (s *BookingService) unrecorded(ctx context.Context, res domain.Reservation, captured payment.CaptureResult, err error) error {
	s.logger.ErrorContext(ctx, "captured payment not recorded",
		slog.String("reservation_id", res.ID),
		slog.String("payment_id", captured.PaymentID),
		slog.String("error", err.Error()),
	)
	return err
}

// Cancel releases a HELD or APPROVED reservation without touching payment.
func (s *BookingService) Cancel(ctx context.Context, reservationID string) (domain.Reservation, error) {
	unlock, err := s.locks.Lock(ctx, reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer unlock()

	var current domain.Reservation
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return wrapStorage("get reservation", err)
		}
		current = res
		next, err := domain.Transition(res.State, domain.EventCancel)
		if err != nil {
			return err
		}
		from := res.State
		res.State = next
		res.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateReservation(txCtx, res, from); err != nil {
			return wrapStorage("update reservation", err)
		}
		if _, err := s.audit.Append(txCtx, reservationEvent(res, res.UserID, domain.ActionCancelled, domain.AuditOK, nil)); err != nil {
			return err
		}
		current = res
		return nil
	})
	if err != nil {
		evt := reservationEvent(current, current.UserID, domain.ActionCancelled, domain.AuditError, []string{err.Error()})
		evt.ReservationID = reservationID
		return domain.Reservation{}, s.fail(ctx, evt, err)
	}
	return current, nil
}

type RefundInput struct {
	UserID        string
	ReservationID string
	// AmountMinor refunds part of the payment; nil refunds all of it.
	AmountMinor *int64
}

// Refund returns the captured payment of a CONFIRMED reservation.
func (s *BookingService) Refund(ctx context.Context, in RefundInput) (domain.Reservation, error) {
	if err := s.checkPaymentConsent(ctx, in.UserID, in.ReservationID, domain.ActionRefunded); err != nil {
		return domain.Reservation{}, err
	}

	unlock, err := s.locks.Lock(ctx, in.ReservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	var (
		current domain.Reservation
		failure *domain.AuditEvent
	)
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, in.ReservationID)
		if err != nil {
			return wrapStorage("get reservation", err)
		}
		current = res
		next, err := domain.Transition(res.State, domain.EventRefund)
		if err != nil {
			return err
		}
		if in.AmountMinor != nil && (*in.AmountMinor < 0 || *in.AmountMinor > res.AmountMinor) {
			return domain.ErrInvalidAmount
		}

		refund, err := s.gateway.Refund(txCtx, res.PaymentID, in.AmountMinor)
		if err != nil || refund.Status != payment.StatusRefunded {
			gwErr := &domain.GatewayError{
				Op:      "refund",
				Status:  refund.Status,
				Details: map[string]any{"payment_id": res.PaymentID, "status": refund.Status},
				Err:     err,
			}
			evt := reservationEvent(res, in.UserID, domain.ActionRefunded, domain.AuditError, []string{gwErr.Error()})
			evt.Details = gwErr.Details
			failure = &evt
			return gwErr
		}

		from := res.State
		res.State = next
		res.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateReservation(txCtx, res, from); err != nil {
			return wrapStorage("update reservation", err)
		}
		evt := reservationEvent(res, in.UserID, domain.ActionRefunded, domain.AuditOK, nil)
		if in.AmountMinor != nil {
			evt.AmountMinor = in.AmountMinor
		}
		evt.Details = map[string]any{"payment_id": res.PaymentID}
		if _, err := s.audit.Append(txCtx, evt); err != nil {
			return err
		}
		current = res
		return nil
	})
	if err != nil {
		evt := reservationEvent(current, in.UserID, domain.ActionRefunded, domain.AuditError, []string{err.Error()})
		evt.ReservationID = in.ReservationID
		if failure != nil {
			evt = *failure
		}
		return domain.Reservation{}, s.fail(ctx, evt, err)
	}
	return current, nil
}

// Reservation returns the current state of a reservation.
func (s *BookingService) Reservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return domain.Reservation{}, wrapStorage("get reservation", err)
	}
	return res, nil
}

// fail records evt for a failed attempt and returns cause, joined with the
// append error when the ledger could not record it.
func (s *BookingService) fail(ctx context.Context, evt domain.AuditEvent, cause error) error {
	if _, err := s.audit.Append(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			slog.String("action", string(evt.Action)),
			slog.String("reservation_id", evt.ReservationID),
			slog.String("error", err.Error()),
		)
		return errors.Join(cause, err)
	}
	return cause
}

func holdEvent(in HoldInput, action domain.Action, status domain.AuditStatus, reservationID string, reasons []string) domain.AuditEvent {
	amount := in.AmountMinor
	evt := domain.AuditEvent{
		Actor:         in.UserID,
		Action:        action,
		Status:        status,
		ReservationID: reservationID,
		AmountMinor:   &amount,
		Currency:      in.Currency,
		Reasons:       reasons,
	}
	if in.Vendor != nil {
		evt.Vendor = *in.Vendor
	}
	return evt
}

func reservationEvent(res domain.Reservation, actor string, action domain.Action, status domain.AuditStatus, reasons []string) domain.AuditEvent {
	evt := domain.AuditEvent{
		Actor:         actor,
		Action:        action,
		Status:        status,
		ReservationID: res.ID,
		Currency:      res.Currency,
		Vendor:        res.VendorName(),
		Reasons:       reasons,
	}
	if res.ID != "" {
		amount := res.AmountMinor
		evt.AmountMinor = &amount
	}
	return evt
}

func policyDetails(p domain.Policy) map[string]any {
	details := map[string]any{
		"max_spend_minor":          p.MaxSpendMinor,
		"currency":                 p.Currency,
		"require_two_step_payment": p.RequireTwoStepPayment,
	}
	if p.AllowedVendors != nil {
		details["allowed_vendors"] = p.AllowedVendors
	}
	return details
}

func authorizationDetails(auth payment.Authorization) map[string]any {
	details := map[string]any{"status": auth.Status}
	if auth.AuthorizationID != "" {
		details["authorization_id"] = auth.AuthorizationID
	}
	for k, v := range auth.Details {
		details[k] = v
	}
	return details
}

// wrapStorage passes domain errors through and tags anything else as a
// storage failure.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrReservationNotFound, domain.ErrInvalidState, domain.ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return domain.StorageError(op, err)
}
