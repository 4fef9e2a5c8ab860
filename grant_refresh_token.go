package oauth

import (
	"context"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// RefreshTokenGrant exchanges a refresh token for a fresh token pair,
// revoking the presented token in the same logical transaction (rotation).
type RefreshTokenGrant struct {
	server *Server
}

// NewRefreshTokenGrant creates the refresh_token grant handler.
func NewRefreshTokenGrant(s *Server) *RefreshTokenGrant {
	return &RefreshTokenGrant{server: s}
}

func (g *RefreshTokenGrant) GrantType() string {
	return GrantTypeRefreshToken
}

func (g *RefreshTokenGrant) Validate(ctx context.Context, req *TokenRequest) error {
	s := g.server

	if req.RefreshToken == "" {
		return serrors.NewInvalidRequest("refresh_token is required")
	}

	cli, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, false)
	if err != nil {
		return err
	}
	req.client = cli

	refresh, err := s.repo.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return serrors.NewInvalidGrant("invalid refresh token")
	}
	if refresh.ClientID != cli.ID {
		return serrors.NewInvalidGrant("refresh token was not issued to this client")
	}
	if refresh.Revoked {
		return serrors.NewInvalidGrant("refresh token revoked")
	}
	if refresh.Expired(s.now()) {
		return serrors.NewInvalidGrant("refresh token expired")
	}

	// The request may narrow but never widen the original grant.
	if requested := SplitScope(req.Scope); len(requested) > 0 {
		granted := make(map[string]struct{}, len(refresh.Scopes))
		for _, sc := range refresh.Scopes {
			granted[sc] = struct{}{}
		}
		for _, sc := range requested {
			if _, ok := granted[sc]; !ok {
				return serrors.NewInvalidScope("requested scope exceeds the original grant: " + sc)
			}
		}
	}

	req.refresh = refresh

	return nil
}

func (g *RefreshTokenGrant) Issue(ctx context.Context, req *TokenRequest) (*domain.TokenResponse, error) {
	s := g.server

	scopes := req.refresh.Scopes
	if requested := SplitScope(req.Scope); len(requested) > 0 {
		scopes = requested
	}

	// Rotation: revoke the old token before the replacement is handed out.
	// The repository must make the revoke+store pair atomic.
	if err := s.repo.RevokeRefreshToken(ctx, req.refresh.Token); err != nil {
		log.Error().Err(err).Str("client_id", req.client.ID).Msg("refresh token revoke failed")
		return nil, serrors.NewServerError("failed to rotate refresh token")
	}

	return s.issueTokens(ctx, req.client, scopes, req.refresh.UserID, true)
}
