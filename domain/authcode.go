package domain

import "time"

// AuthCode represents an OAuth 2.0 authorization code bound to the client,
// redirect URI and PKCE challenge it was issued with.
type AuthCode struct {
	Code                string     `json:"code"`
	ClientID            string     `json:"client_id"`
	UserID              string     `json:"user_id"`
	RedirectURI         string     `json:"redirect_uri"`
	Scopes              []string   `json:"scopes"`
	CodeChallenge       string     `json:"code_challenge"`
	CodeChallengeMethod string     `json:"code_challenge_method"`
	ExpiresAt           time.Time  `json:"expires_at"`
	UsedAt              *time.Time `json:"used_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Expired reports whether the code is past its TTL at the given instant.
func (c *AuthCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Used reports whether the code has already been exchanged.
func (c *AuthCode) Used() bool {
	return c.UsedAt != nil
}
