package domain

import "time"

// ConsentScopes are the grants a user gave the booking agent.
type ConsentScopes struct {
	CalendarRead      bool `json:"calendar_read" yaml:"calendar_read"`
	CalendarWrite     bool `json:"calendar_write" yaml:"calendar_write"`
	PaymentProcessing bool `json:"payment_processing" yaml:"payment_processing"`
	PreferencesUsage  bool `json:"preferences_usage" yaml:"preferences_usage"`
}

type Consent struct {
	UserID        string
	Scopes        ConsentScopes
	OAuthProvider string
	UpdatedAt     time.Time
}
