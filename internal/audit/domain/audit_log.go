package domain

import "time"

// AuditLog is one append-only audit entry. UserID is empty when the actor is unknown
// (e.g. login_failure for an unknown email).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	Device    string
	Metadata  string // JSON object
	CreatedAt time.Time
}
