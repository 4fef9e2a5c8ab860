// Package tokenstore persists tokens obtained by the OAuth client, keyed by
// client id. The client never persists tokens itself; every implementation
// here is interchangeable behind the Store interface.
package tokenstore

import (
	"context"
	"time"
)

// Tokens is the client-side record of an issued token set.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Valid reports whether the access token is present and not expired.
func (t *Tokens) Valid() bool {
	return t != nil && t.AccessToken != "" && time.Now().Before(t.ExpiresAt)
}

// Store is the client-side token persistence contract. Get returns
// (nil, nil) when no tokens are stored for the client id.
type Store interface {
	Get(ctx context.Context, clientID string) (*Tokens, error)
	Set(ctx context.Context, clientID string, tokens *Tokens) error
	Clear(ctx context.Context, clientID string) error
	ClearAll(ctx context.Context) error
}
