package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard OAuth2 error codes. The set is closed: every protocol failure the
// server surfaces maps to exactly one of these.
const (
	InvalidRequest       = "invalid_request"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	InvalidScope         = "invalid_scope"
	UnauthorizedClient   = "unauthorized_client"
	UnsupportedGrantType = "unsupported_grant_type"
	AccessDenied         = "access_denied"
	AuthorizationPending = "authorization_pending"
	SlowDown             = "slow_down"
	ExpiredToken         = "expired_token"
	ServerError          = "server_error"
)

// OAuth2Error represents a standardized OAuth 2.0 error response body.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the HTTP status code the error serializes with.
// invalid_client is the only code answered with 401; server_error with 500.
// The device-flow soft errors (authorization_pending, slow_down) are regular
// 400 responses per RFC 8628.
func (e *OAuth2Error) HTTPStatus() int {
	switch e.Code {
	case InvalidClient:
		return http.StatusUnauthorized
	case ServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsOAuth2Error extracts an *OAuth2Error from an error chain. Errors outside
// the taxonomy collapse to server_error so no internal detail leaks.
func AsOAuth2Error(err error) *OAuth2Error {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return NewServerError("internal error")
}

// Common error constructors

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description}
}

func NewAuthorizationPending() *OAuth2Error {
	return &OAuth2Error{
		Code:        AuthorizationPending,
		Description: "The authorization request is still pending",
	}
}

func NewSlowDown() *OAuth2Error {
	return &OAuth2Error{
		Code:        SlowDown,
		Description: "Polling too frequently, increase your interval by 5 seconds",
	}
}

func NewExpiredToken(description string) *OAuth2Error {
	return &OAuth2Error{Code: ExpiredToken, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// PKCE specific errors

func NewPKCERequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: "PKCE is required for this request",
	}
}

func NewInvalidPKCE(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: fmt.Sprintf("PKCE validation failed: %s", description),
	}
}

// Sentinel errors returned by repositories. The server maps each to the
// appropriate taxonomy member at the boundary.
var (
	ErrClientNotFound       = errors.New("client not found")
	ErrAuthCodeNotFound     = errors.New("authorization code not found")
	ErrDeviceCodeNotFound   = errors.New("device code not found")
	ErrUserCodeNotFound     = errors.New("user code not found")
	ErrAuthRequestNotFound  = errors.New("authorization request not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrAlreadyUsed          = errors.New("already used")
)
