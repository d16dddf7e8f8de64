package domain

import (
	"testing"
	"time"
)

func TestSession_Usable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"live", Session{ExpiresAt: now.Add(time.Minute)}, true},
		{"revoked", Session{ExpiresAt: now.Add(time.Minute), Revoked: true}, false},
		{"expires now", Session{ExpiresAt: now}, false},
		{"expired", Session{ExpiresAt: now.Add(-time.Second)}, false},
	}
	for _, tt := range tests {
		if got := tt.s.Usable(now); got != tt.want {
			t.Errorf("%s: Usable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDeviceOrDefault(t *testing.T) {
	if got := DeviceOrDefault(""); got != DefaultDevice {
		t.Errorf("DeviceOrDefault(\"\") = %q", got)
	}
	if got := DeviceOrDefault("Pixel 9"); got != "Pixel 9" {
		t.Errorf("DeviceOrDefault = %q", got)
	}
}
