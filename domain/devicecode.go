package domain

import "time"

// DeviceAuth holds the state of a device authorization grant (RFC 8628).
// Approved is tri-state: nil while the user has not decided, then true or
// false once the out-of-band verification completes.
type DeviceAuth struct {
	ID           string     `json:"id"`
	DeviceCode   string     `json:"device_code"`
	UserCode     string     `json:"user_code"`
	ClientID     string     `json:"client_id"`
	UserID       string     `json:"user_id,omitempty"`
	Scopes       []string   `json:"scopes"`
	Approved     *bool      `json:"approved,omitempty"`
	Interval     int        `json:"interval"` // seconds
	ExpiresAt    time.Time  `json:"expires_at"`
	LastPolledAt time.Time  `json:"last_polled_at,omitempty"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the device code is past its TTL.
func (d *DeviceAuth) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Pending reports whether the user has not yet approved or denied the request.
func (d *DeviceAuth) Pending() bool {
	return d.Approved == nil
}
