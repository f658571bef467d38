package policy

import (
	"testing"

	"github.com/cimillas/autobook/internal/domain"
)

func strptr(s string) *string { return &s }

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   int64
		currency string
		vendor   *string
		policy   domain.Policy
		allowed  bool
		reasons  []string
	}{
		{
			name:     "within every rule",
			amount:   10000,
			currency: "USD",
			vendor:   strptr("Acme"),
			policy:   domain.Policy{MaxSpendMinor: 20000, Currency: "USD", AllowedVendors: []string{"Acme"}},
			allowed:  true,
		},
		{
			name:     "amount over cap",
			amount:   25000,
			currency: "USD",
			policy:   domain.Policy{MaxSpendMinor: 20000},
			reasons:  []string{ReasonAmountExceedsCap},
		},
		{
			name:     "amount equal to cap is allowed",
			amount:   20000,
			currency: "USD",
			policy:   domain.Policy{MaxSpendMinor: 20000},
			allowed:  true,
		},
		{
			name:     "zero cap means no cap",
			amount:   1 << 40,
			currency: "USD",
			policy:   domain.Policy{},
			allowed:  true,
		},
		{
			name:     "currency compared case-insensitively",
			amount:   100,
			currency: "usd",
			policy:   domain.Policy{Currency: "USD"},
			allowed:  true,
		},
		{
			name:     "currency mismatch",
			amount:   100,
			currency: "EUR",
			policy:   domain.Policy{Currency: "USD"},
			reasons:  []string{ReasonCurrencyMismatch},
		},
		{
			name:     "vendor outside allow-list",
			amount:   100,
			currency: "USD",
			vendor:   strptr("Globex"),
			policy:   domain.Policy{AllowedVendors: []string{"Acme"}},
			reasons:  []string{ReasonVendorNotAllowed},
		},
		{
			name:     "missing vendor passes allow-list",
			amount:   100,
			currency: "USD",
			policy:   domain.Policy{AllowedVendors: []string{"Acme"}},
			allowed:  true,
		},
		{
			name:     "empty allow-list denies any named vendor",
			amount:   100,
			currency: "USD",
			vendor:   strptr("Acme"),
			policy:   domain.Policy{AllowedVendors: []string{}},
			reasons:  []string{ReasonVendorNotAllowed},
		},
		{
			name:     "every violation reported",
			amount:   50000,
			currency: "GBP",
			vendor:   strptr("Globex"),
			policy:   domain.Policy{MaxSpendMinor: 20000, Currency: "USD", AllowedVendors: []string{"Acme"}},
			reasons:  []string{ReasonAmountExceedsCap, ReasonCurrencyMismatch, ReasonVendorNotAllowed},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Evaluate(tt.amount, tt.currency, tt.vendor, tt.policy)
			if got.Allowed != tt.allowed {
				t.Fatalf("expected allowed=%v, got %v (%v)", tt.allowed, got.Allowed, got.Reasons)
			}
			if len(got.Reasons) != len(tt.reasons) {
				t.Fatalf("expected %d reasons, got %v", len(tt.reasons), got.Reasons)
			}
			for i, want := range tt.reasons {
				if got.Reasons[i] != want {
					t.Fatalf("reason %d: expected %q, got %q", i, want, got.Reasons[i])
				}
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	p := domain.Policy{MaxSpendMinor: 10, Currency: "USD", AllowedVendors: []string{"Acme"}}
	first := Evaluate(20, "EUR", strptr("Globex"), p)
	second := Evaluate(20, "EUR", strptr("Globex"), p)

	if len(first.Reasons) != len(second.Reasons) {
		t.Fatalf("expected identical decisions, got %v and %v", first, second)
	}
	for i := range first.Reasons {
		if first.Reasons[i] != second.Reasons[i] {
			t.Fatalf("reason %d differs: %q vs %q", i, first.Reasons[i], second.Reasons[i])
		}
	}
	if p.AllowedVendors[0] != "Acme" {
		t.Fatalf("policy mutated")
	}
}
