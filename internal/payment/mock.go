package payment

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MockGateway is an in-process Gateway for local runs and tests. It
// authorizes everything up to DeclineAboveMinor (zero = no limit).
type MockGateway struct {
	DeclineAboveMinor int64
	Latency           time.Duration

	authorizeCalls atomic.Int64
	captureCalls   atomic.Int64
	refundCalls    atomic.Int64

	mu       sync.Mutex
	failNext map[string]string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{failNext: make(map[string]string)}
}

// FailNext makes the next call to op ("authorize", "capture" or "refund")
// return status instead of succeeding.
func (g *MockGateway) FailNext(op, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext == nil {
		g.failNext = make(map[string]string)
	}
	g.failNext[op] = status
}

func (g *MockGateway) AuthorizeCalls() int64 { return g.authorizeCalls.Load() }
func (g *MockGateway) CaptureCalls() int64   { return g.captureCalls.Load() }
func (g *MockGateway) RefundCalls() int64    { return g.refundCalls.Load() }

func (g *MockGateway) Authorize(ctx context.Context, amountMinor int64, currency string, method Method, details map[string]any) (Authorization, error) {
	g.authorizeCalls.Add(1)
	if err := g.wait(ctx); err != nil {
		return Authorization{}, err
	}
	auth := Authorization{
		AmountMinor: amountMinor,
		Currency:    currency,
		MethodLabel: method.Label,
		Details:     details,
	}
	if status, ok := g.takeFailure("authorize"); ok {
		auth.Status = status
		return auth, nil
	}
	if g.DeclineAboveMinor > 0 && amountMinor > g.DeclineAboveMinor {
		auth.Status = StatusDeclined
		return auth, nil
	}
	auth.Status = StatusAuthorized
	auth.AuthorizationID = newID("auth_")
	return auth, nil
}

func (g *MockGateway) Capture(ctx context.Context, authorizationID string) (CaptureResult, error) {
	g.captureCalls.Add(1)
	if err := g.wait(ctx); err != nil {
		return CaptureResult{}, err
	}
	if status, ok := g.takeFailure("capture"); ok {
		return CaptureResult{Status: status, AuthorizationID: authorizationID}, nil
	}
	return CaptureResult{
		Status:          StatusCaptured,
		PaymentID:       newID("pay_"),
		AuthorizationID: authorizationID,
	}, nil
}

func (g *MockGateway) Refund(ctx context.Context, paymentID string, amountMinor *int64) (RefundResult, error) {
	g.refundCalls.Add(1)
	if err := g.wait(ctx); err != nil {
		return RefundResult{}, err
	}
	if status, ok := g.takeFailure("refund"); ok {
		return RefundResult{Status: status, PaymentID: paymentID}, nil
	}
	return RefundResult{Status: StatusRefunded, PaymentID: paymentID, AmountMinor: amountMinor}, nil
}

func (g *MockGateway) takeFailure(op string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.failNext[op]
	if ok {
		delete(g.failNext, op)
	}
	return status, ok
}

func (g *MockGateway) wait(ctx context.Context) error {
	if g.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(g.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
