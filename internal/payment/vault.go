package payment

import "time"

// StoredMethod is a user's method on file. Token storage is delegated to
// the repository; encryption at rest is the store's concern.
type StoredMethod struct {
	UserID    string
	Method    Method
	UpdatedAt time.Time
}
