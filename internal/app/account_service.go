package app

import (
	"context"
	"strings"

	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/domain"
	"github.com/cimillas/autobook/internal/payment"
)

type AccountRepository interface {
	UpsertConsent(ctx context.Context, consent domain.Consent) error
	GetConsent(ctx context.Context, userID string) (*domain.Consent, error)
	UpsertPaymentMethod(ctx context.Context, method payment.StoredMethod) error
	GetPaymentMethod(ctx context.Context, userID string) (*payment.StoredMethod, error)
}

// AccountService records what each user consented to and which payment
// method is on file. It is the consent provider and method resolver the
// booking service depends on.
type AccountService struct {
	repo  AccountRepository
	clock clock.Clock
}

func NewAccountService(repo AccountRepository, clk clock.Clock) *AccountService {
	return &AccountService{
		repo:  repo,
		clock: clk,
	}
}

type SetConsentInput struct {
	UserID        string
	Scopes        domain.ConsentScopes
	OAuthProvider string
}

func (s *AccountService) SetConsent(ctx context.Context, in SetConsentInput) (domain.Consent, error) {
	if in.UserID == "" {
		return domain.Consent{}, domain.ErrUserRequired
	}
	consent := domain.Consent{
		UserID:        in.UserID,
		Scopes:        in.Scopes,
		OAuthProvider: in.OAuthProvider,
		UpdatedAt:     s.clock.Now(),
	}
	if err := s.repo.UpsertConsent(ctx, consent); err != nil {
		return domain.Consent{}, domain.StorageError("save consent", err)
	}
	return consent, nil
}

func (s *AccountService) Consent(ctx context.Context, userID string) (domain.Consent, bool, error) {
	c, err := s.repo.GetConsent(ctx, userID)
	if err != nil {
		return domain.Consent{}, false, err
	}
	if c == nil {
		return domain.Consent{}, false, nil
	}
	return *c, true, nil
}

type StorePaymentMethodInput struct {
	UserID       string
	Type         string
	GatewayToken string
	Last4        string
	Brand        string
}

func (s *AccountService) StorePaymentMethod(ctx context.Context, in StorePaymentMethodInput) (payment.StoredMethod, error) {
	if in.UserID == "" {
		return payment.StoredMethod{}, domain.ErrUserRequired
	}
	if strings.TrimSpace(in.GatewayToken) == "" {
		return payment.StoredMethod{}, domain.ErrMissingPaymentMethod
	}
	methodType := in.Type
	if methodType == "" {
		methodType = "card"
	}
	stored := payment.StoredMethod{
		UserID: in.UserID,
		Method: payment.Method{
			Type:  methodType,
			Token: in.GatewayToken,
			Label: payment.MaskPAN(in.Last4),
			Brand: in.Brand,
		},
		UpdatedAt: s.clock.Now(),
	}
	if err := s.repo.UpsertPaymentMethod(ctx, stored); err != nil {
		return payment.StoredMethod{}, domain.StorageError("save payment method", err)
	}
	return stored, nil
}

func (s *AccountService) PaymentMethod(ctx context.Context, userID string) (payment.Method, bool, error) {
	m, err := s.repo.GetPaymentMethod(ctx, userID)
	if err != nil {
		return payment.Method{}, false, err
	}
	if m == nil {
		return payment.Method{}, false, nil
	}
	return m.Method, true, nil
}
