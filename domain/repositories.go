package domain

import (
	"context"
	"time"
)

// The repositories below form the persistence contract the host application
// supplies. The core never assumes a storage engine; it only requires that
// the Mark* operations are atomic with respect to the single-use invariants
// (compare-and-set on "not yet used"), returning errors.ErrAlreadyUsed when
// the record was consumed by a concurrent exchange.

// ClientRepository resolves registered clients.
type ClientRepository interface {
	// GetClient returns errors.ErrClientNotFound when no client exists
	// under the given id. Any other error signals a loader failure.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// ScopeRepository lists the scopes the authorization server knows about.
type ScopeRepository interface {
	ListScopes(ctx context.Context) ([]string, error)
}

// AuthCodeRepository persists authorization codes.
type AuthCodeRepository interface {
	SaveAuthCode(ctx context.Context, code *AuthCode) error
	GetAuthCode(ctx context.Context, code string) (*AuthCode, error)
	// MarkAuthCodeUsed sets used_at exactly once; a second call fails with
	// errors.ErrAlreadyUsed.
	MarkAuthCodeUsed(ctx context.Context, code string) error
}

// DeviceAuthRepository persists device authorization grants.
type DeviceAuthRepository interface {
	SaveDeviceAuth(ctx context.Context, auth *DeviceAuth) error
	GetDeviceAuthByDeviceCode(ctx context.Context, deviceCode string) (*DeviceAuth, error)
	GetDeviceAuthByUserCode(ctx context.Context, userCode string) (*DeviceAuth, error)
	// SetDeviceAuthDecision records the out-of-band user decision. It fails
	// with errors.ErrAlreadyUsed when a decision was already recorded.
	SetDeviceAuthDecision(ctx context.Context, userCode string, approved bool, userID string) error
	UpdateDeviceAuthLastPolledAt(ctx context.Context, deviceCode string, at time.Time) error
	// MarkDeviceAuthUsed sets used_at exactly once, at token issuance.
	MarkDeviceAuthUsed(ctx context.Context, deviceCode string) error
}

// AuthRequestRepository persists pushed authorization requests.
type AuthRequestRepository interface {
	SaveAuthRequest(ctx context.Context, req *AuthRequest) error
	GetAuthRequest(ctx context.Context, requestURI string) (*AuthRequest, error)
	MarkAuthRequestUsed(ctx context.Context, requestURI string) error
}

// RefreshTokenRepository persists refresh tokens.
type RefreshTokenRepository interface {
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

// OAuthRepository bundles every repository the authorization server needs.
type OAuthRepository interface {
	ClientRepository
	ScopeRepository
	AuthCodeRepository
	DeviceAuthRepository
	AuthRequestRepository
	RefreshTokenRepository
}
