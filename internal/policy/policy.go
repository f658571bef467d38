// Package policy decides whether a proposed spend stays within the bounds a
// user consented to. Evaluation is pure: no I/O, no logging, no mutation.
package policy

import (
	"slices"
	"strings"

	"github.com/cimillas/autobook/internal/domain"
)

// Violation reasons, in evaluation order.
const (
	ReasonAmountExceedsCap = "amount exceeds cap"
	ReasonCurrencyMismatch = "currency mismatch"
	ReasonVendorNotAllowed = "vendor not allowed"
)

type Decision struct {
	Allowed bool
	Reasons []string
}

// Evaluate checks every rule and reports all violations, not just the
// first. A nil vendor is not checked against the allow-list.
func Evaluate(amountMinor int64, currency string, vendor *string, p domain.Policy) Decision {
	reasons := []string{}

	if p.MaxSpendMinor > 0 && amountMinor > p.MaxSpendMinor {
		reasons = append(reasons, ReasonAmountExceedsCap)
	}

	if p.Currency != "" && !strings.EqualFold(strings.TrimSpace(currency), strings.TrimSpace(p.Currency)) {
		reasons = append(reasons, ReasonCurrencyMismatch)
	}

	if p.AllowedVendors != nil && vendor != nil && !slices.Contains(p.AllowedVendors, *vendor) {
		reasons = append(reasons, ReasonVendorNotAllowed)
	}

	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}
}
