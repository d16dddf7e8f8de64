package domain

import "time"

// DefaultDevice labels a session whose client did not describe itself.
const DefaultDevice = "Unknown Device"

// Session is a refresh token ledger entry: one live refresh token for a user on a device.
// Only the fingerprint of the token is stored.
type Session struct {
	ID               string
	UserID           string
	TokenFingerprint string
	Device           string
	ExpiresAt        time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// Usable reports whether the session can still be exchanged for new tokens at now.
func (s *Session) Usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// DeviceOrDefault returns device, or DefaultDevice when it is blank.
func DeviceOrDefault(device string) string {
	if device == "" {
		return DefaultDevice
	}
	return device
}
