package domain

// Policy bounds what an agent may spend without a human in the loop.
// It is owned by the caller and passed by value into each hold.
type Policy struct {
	// MaxSpendMinor is the cap in minor units; zero means no cap.
	MaxSpendMinor int64
	Currency      string
	// AllowedVendors is nil when any vendor is acceptable.
	AllowedVendors        []string
	DateWindowDays        int
	RequireTwoStepPayment bool
}

// DefaultPolicy mirrors the defaults applied when a caller omits fields.
func DefaultPolicy() Policy {
	return Policy{
		Currency:              "USD",
		DateWindowDays:        3,
		RequireTwoStepPayment: true,
	}
}

func (p Policy) Validate() error {
	if p.MaxSpendMinor < 0 || p.DateWindowDays < 0 {
		return ErrInvalidPolicy
	}
	return nil
}
