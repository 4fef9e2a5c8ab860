package domain

import "time"

// AuthRequest is a pushed authorization request (RFC 9126) stored server-side
// under an opaque request_uri. Single-use with a short TTL.
type AuthRequest struct {
	RequestURI          string     `json:"request_uri"`
	ClientID            string     `json:"client_id"`
	ResponseType        string     `json:"response_type"`
	RedirectURI         string     `json:"redirect_uri"`
	Scopes              []string   `json:"scopes"`
	State               string     `json:"state,omitempty"`
	CodeChallenge       string     `json:"code_challenge"`
	CodeChallengeMethod string     `json:"code_challenge_method"`
	CreatedAt           time.Time  `json:"created_at"`
	ExpiresAt           time.Time  `json:"expires_at"`
	UsedAt              *time.Time `json:"used_at,omitempty"`
}

// Expired reports whether the pushed request is past its TTL.
func (r *AuthRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
