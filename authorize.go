package oauth

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// RequestURIPrefix is the urn prefix of PAR request_uri values (RFC 9126).
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// AuthorizationRequest carries the query parameters of an authorization
// endpoint call. UserID identifies the authenticated resource owner; session
// handling and consent UI are the host's concern.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	RequestURI          string // PAR reference, replaces the inline parameters
	UserID              string
}

// AuthorizationResult is the outcome of a successful (or redirectable-error)
// authorization request.
type AuthorizationResult struct {
	RedirectURL string
}

// HandleAuthorizationRequest validates an authorization request and, on
// success, issues an authorization code bound to the client, redirect URI,
// granted scopes and PKCE challenge. Failures occurring after the redirect
// URI has been validated come back as an error redirect in the result;
// earlier failures return a bare *serrors.OAuth2Error since redirecting to an
// unverified URI would open a redirector.
func (s *Server) HandleAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResult, error) {
	if req.RequestURI != "" {
		stored, ok := s.ValidateAuthorizationRequest(ctx, req.RequestURI)
		if !ok {
			return nil, serrors.NewInvalidRequest("invalid, expired or used request_uri")
		}
		if req.ClientID != "" && req.ClientID != stored.ClientID {
			return nil, serrors.NewInvalidRequest("client_id does not match pushed request")
		}
		req = &AuthorizationRequest{
			ResponseType:        stored.ResponseType,
			ClientID:            stored.ClientID,
			RedirectURI:         stored.RedirectURI,
			Scope:               strings.Join(stored.Scopes, " "),
			State:               stored.State,
			CodeChallenge:       stored.CodeChallenge,
			CodeChallengeMethod: stored.CodeChallengeMethod,
			UserID:              req.UserID,
		}
	}

	cli, err := s.resolveClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if req.RedirectURI == "" || !cli.HasRedirectURI(req.RedirectURI) {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	// From here on errors are safe to deliver via redirect.
	if req.ResponseType != "code" {
		return s.errorRedirect(req, serrors.NewInvalidRequest("unsupported response_type")), nil
	}

	// PKCE is mandatory regardless of what the metadata advertises.
	if req.CodeChallenge == "" {
		return s.errorRedirect(req, serrors.NewPKCERequired()), nil
	}
	method := req.CodeChallengeMethod
	if method == "" {
		method = CodeChallengeMethodPlain
	}
	if method != CodeChallengeMethodS256 && method != CodeChallengeMethodPlain {
		return s.errorRedirect(req, serrors.NewInvalidRequest("invalid code_challenge_method")), nil
	}

	scopes, err := s.ResolveScopes(ctx, cli, SplitScope(req.Scope))
	if err != nil {
		if oauthErr, ok := err.(*serrors.OAuth2Error); ok {
			return s.errorRedirect(req, oauthErr), nil
		}
		return nil, err
	}

	code, err := randomToken(32)
	if err != nil {
		return nil, serrors.NewServerError("failed to generate authorization code")
	}

	now := s.now()
	authCode := &domain.AuthCode{
		Code:                code,
		ClientID:            cli.ID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(s.cfg.AuthCodeTTL),
		CreatedAt:           now,
	}
	if err := s.repo.SaveAuthCode(ctx, authCode); err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("auth code store failed")
		return nil, serrors.NewServerError("failed to store authorization code")
	}

	redirect, _ := url.Parse(req.RedirectURI)
	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	return &AuthorizationResult{RedirectURL: redirect.String()}, nil
}

// errorRedirect builds an error redirect to the (already validated) redirect
// URI per RFC 6749 section 4.1.2.1.
func (s *Server) errorRedirect(req *AuthorizationRequest, oauthErr *serrors.OAuth2Error) *AuthorizationResult {
	redirect, _ := url.Parse(req.RedirectURI)
	q := redirect.Query()
	q.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		q.Set("error_description", oauthErr.Description)
	}
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()
	return &AuthorizationResult{RedirectURL: redirect.String()}
}

// HandlePushedAuthorizationRequest stores a full authorization request under
// an opaque request_uri (RFC 9126). The stored request is single-use with a
// short TTL.
func (s *Server) HandlePushedAuthorizationRequest(ctx context.Context, req *AuthorizationRequest, clientSecret string) (*domain.PushedAuthorizationResponse, error) {
	cli, err := s.authenticateClient(ctx, req.ClientID, clientSecret, false)
	if err != nil {
		return nil, err
	}

	if req.RequestURI != "" {
		return nil, serrors.NewInvalidRequest("request_uri must not be used at the PAR endpoint")
	}
	if req.RedirectURI == "" || !cli.HasRedirectURI(req.RedirectURI) {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}
	if req.ResponseType != "code" {
		return nil, serrors.NewInvalidRequest("unsupported response_type")
	}
	if req.CodeChallenge == "" {
		return nil, serrors.NewPKCERequired()
	}
	method := req.CodeChallengeMethod
	if method == "" {
		method = CodeChallengeMethodPlain
	}
	if method != CodeChallengeMethodS256 && method != CodeChallengeMethodPlain {
		return nil, serrors.NewInvalidRequest("invalid code_challenge_method")
	}

	scopes, err := s.ResolveScopes(ctx, cli, SplitScope(req.Scope))
	if err != nil {
		return nil, err
	}

	now := s.now()
	stored := &domain.AuthRequest{
		RequestURI:          RequestURIPrefix + uuid.NewString(),
		ClientID:            cli.ID,
		ResponseType:        req.ResponseType,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.cfg.AuthRequestTTL),
	}
	if err := s.repo.SaveAuthRequest(ctx, stored); err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("pushed authorization request store failed")
		return nil, serrors.NewServerError("failed to store authorization request")
	}

	return &domain.PushedAuthorizationResponse{
		RequestURI: stored.RequestURI,
		ExpiresIn:  int64(stored.ExpiresAt.Sub(now).Seconds()),
	}, nil
}

// ValidateAuthorizationRequest resolves a pushed request_uri and consumes it.
// Non-existent, expired and already-used requests are indistinguishable to
// the caller, which prevents request_uri enumeration.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, requestURI string) (*domain.AuthRequest, bool) {
	stored, err := s.repo.GetAuthRequest(ctx, requestURI)
	if err != nil {
		return nil, false
	}
	if stored.Expired(s.now()) || stored.UsedAt != nil {
		return nil, false
	}
	if err := s.repo.MarkAuthRequestUsed(ctx, requestURI); err != nil {
		return nil, false
	}
	return stored, true
}
