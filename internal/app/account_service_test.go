package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/payment"
)

type fakeAccountRepo struct {
	consents map[string]domain.Consent
	methods  map[string]payment.StoredMethod

	upsertErr error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		consents: make(map[string]domain.Consent),
		methods:  make(map[string]payment.StoredMethod),
	}
}

func (f *fakeAccountRepo) UpsertConsent(_ context.Context, c domain.Consent) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.consents[c.UserID] = c
	return nil
}

func (f *fakeAccountRepo) GetConsent(_ context.Context, userID string) (*domain.Consent, error) {
	c, ok := f.consents[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeAccountRepo) UpsertPaymentMethod(_ context.Context, m payment.StoredMethod) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.methods[m.UserID] = m
	return nil
}

func (f *fakeAccountRepo) GetPaymentMethod(_ context.Context, userID string) (*payment.StoredMethod, error) {
	m, ok := f.methods[userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func TestAccountService_SetConsent(t *testing.T) {
	now := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo()
	svc := NewAccountService(repo, clock.NewFixed(now))
	ctx := context.Background()

	got, err := svc.SetConsent(ctx, SetConsentInput{
		UserID: "user-1",
		Scopes: domain.ConsentScopes{PaymentProcessing: true},
	})
	if err != nil {
		t.Fatalf("set consent: %v", err)
	}
	if got.UpdatedAt != now {
		t.Fatalf("expected updated_at %v, got %v", now, got.UpdatedAt)
	}

	consent, ok, err := svc.Consent(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("expected consent, got ok=%v err=%v", ok, err)
	}
	if !consent.Scopes.PaymentProcessing {
		t.Fatalf("expected payment_processing scope")
	}

	if _, ok, _ := svc.Consent(ctx, "user-2"); ok {
		t.Fatalf("expected no consent for user-2")
	}
}

func TestAccountService_SetConsent_ValidatesUser(t *testing.T) {
	svc := NewAccountService(newFakeAccountRepo(), clock.NewFixed(time.Now()))

	_, err := svc.SetConsent(context.Background(), SetConsentInput{})
	if err != domain.ErrUserRequired {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestAccountService_StorePaymentMethod(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := NewAccountService(repo, clock.NewFixed(time.Now()))
	ctx := context.Background()

	stored, err := svc.StorePaymentMethod(ctx, StorePaymentMethodInput{
		UserID:       "user-1",
		GatewayToken: "tok_visa",
		Last4:        "4242",
		Brand:        "visa",
	})
	if err != nil {
		t.Fatalf("store method: %v", err)
	}
	if stored.Method.Label != "**** **** **** 4242" {
		t.Fatalf("unexpected label %q", stored.Method.Label)
	}
	if stored.Method.Type != "card" {
		t.Fatalf("expected default type card, got %q", stored.Method.Type)
	}

	method, ok, err := svc.PaymentMethod(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("expected method, got ok=%v err=%v", ok, err)
	}
	if method.Token != "tok_visa" {
		t.Fatalf("expected token tok_visa, got %q", method.Token)
	}

	_, err = svc.StorePaymentMethod(ctx, StorePaymentMethodInput{UserID: "user-1"})
	if err != domain.ErrMissingPaymentMethod {
		t.Fatalf("expected ErrMissingPaymentMethod, got %v", err)
	}
}

func TestAccountService_StorageFailure(t *testing.T) {
	repo := newFakeAccountRepo()
	repo.upsertErr = errors.New("disk full")
	svc := NewAccountService(repo, clock.NewFixed(time.Now()))

	_, err := svc.SetConsent(context.Background(), SetConsentInput{UserID: "user-1"})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
