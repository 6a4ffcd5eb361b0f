package domain

import "time"

// ServiceToken authenticates internal callers (transport layer, reconciliation
// tooling) against settlement endpoints. Only the sha256 hash is stored.
type ServiceToken struct {
	ID        int64
	Name      string
	TokenHash string
	UserID    int64
	Abilities string
	ExpiresAt *time.Time
}
