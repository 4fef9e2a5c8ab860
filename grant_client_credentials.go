package oauth

import (
	"context"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// ClientCredentialsGrant issues access tokens directly to confidential
// clients. Stateless: no code, no refresh token.
type ClientCredentialsGrant struct {
	server *Server
}

// NewClientCredentialsGrant creates the client_credentials grant handler.
func NewClientCredentialsGrant(s *Server) *ClientCredentialsGrant {
	return &ClientCredentialsGrant{server: s}
}

func (g *ClientCredentialsGrant) GrantType() string {
	return GrantTypeClientCredentials
}

func (g *ClientCredentialsGrant) Validate(ctx context.Context, req *TokenRequest) error {
	if req.ClientID == "" || req.ClientSecret == "" {
		return serrors.NewInvalidRequest("client_id and client_secret are required")
	}

	cli, err := g.server.authenticateClient(ctx, req.ClientID, req.ClientSecret, true)
	if err != nil {
		return err
	}
	req.client = cli

	return nil
}

func (g *ClientCredentialsGrant) Issue(ctx context.Context, req *TokenRequest) (*domain.TokenResponse, error) {
	scopes, err := g.server.ResolveScopes(ctx, req.client, SplitScope(req.Scope))
	if err != nil {
		return nil, err
	}

	return g.server.issueTokens(ctx, req.client, scopes, "", false)
}
