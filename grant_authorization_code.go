package oauth

import (
	"context"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// AuthorizationCodeGrant exchanges single-use authorization codes for tokens,
// enforcing PKCE and exact redirect URI binding.
type AuthorizationCodeGrant struct {
	server *Server
}

// NewAuthorizationCodeGrant creates the authorization_code grant handler.
func NewAuthorizationCodeGrant(s *Server) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{server: s}
}

func (g *AuthorizationCodeGrant) GrantType() string {
	return GrantTypeAuthorizationCode
}

// Validate checks the exchange in protocol order: code exists, not expired,
// not used, redirect_uri matches byte-for-byte, PKCE verifies. Every failure
// collapses to invalid_grant.
func (g *AuthorizationCodeGrant) Validate(ctx context.Context, req *TokenRequest) error {
	s := g.server

	if req.Code == "" {
		return serrors.NewInvalidRequest("code is required")
	}
	if req.CodeVerifier == "" {
		return serrors.NewPKCERequired()
	}
	if !IsValidCodeVerifier(req.CodeVerifier) {
		return serrors.NewInvalidPKCE("malformed code_verifier")
	}

	cli, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, false)
	if err != nil {
		return err
	}
	req.client = cli

	authCode, err := s.repo.GetAuthCode(ctx, req.Code)
	if err != nil {
		return serrors.NewInvalidGrant("invalid authorization code")
	}
	if authCode.ClientID != cli.ID {
		return serrors.NewInvalidGrant("authorization code was not issued to this client")
	}
	if authCode.Expired(s.now()) {
		return serrors.NewInvalidGrant("authorization code expired")
	}
	if authCode.Used() {
		return serrors.NewInvalidGrant("authorization code already used")
	}
	if req.RedirectURI != authCode.RedirectURI {
		return serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if !VerifyCodeChallenge(req.CodeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
		return serrors.NewInvalidGrant("PKCE verification failed")
	}

	req.authCode = authCode

	return nil
}

// Issue consumes the code and mints tokens. The used_at mark and token
// issuance form one logical transaction; a concurrent exchange losing the
// compare-and-set race gets invalid_grant.
func (g *AuthorizationCodeGrant) Issue(ctx context.Context, req *TokenRequest) (*domain.TokenResponse, error) {
	s := g.server

	if err := s.repo.MarkAuthCodeUsed(ctx, req.authCode.Code); err != nil {
		if err == serrors.ErrAlreadyUsed {
			return nil, serrors.NewInvalidGrant("authorization code already used")
		}
		log.Error().Err(err).Str("client_id", req.client.ID).Msg("auth code consume failed")
		return nil, serrors.NewServerError("failed to consume authorization code")
	}

	return s.issueTokens(ctx, req.client, req.authCode.Scopes, req.authCode.UserID, true)
}
