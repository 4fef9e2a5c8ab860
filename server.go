package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
)

// Grant type identifiers understood by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenIssuer mints an access token for a client. Hosts override it to issue
// JWTs or reference tokens from their own token service; the default issues
// opaque random tokens.
type TokenIssuer func(ctx context.Context, client *domain.Client, scopes []string, userID string) (string, error)

// GrantHandler is implemented by each enabled grant type. Validate performs
// protocol validation for a token request; Issue consumes single-use state
// and produces the token response. HandleTokenRequest always calls them in
// that order.
type GrantHandler interface {
	GrantType() string
	Validate(ctx context.Context, req *TokenRequest) error
	Issue(ctx context.Context, req *TokenRequest) (*domain.TokenResponse, error)
}

// ServerConfig carries the tunables of the authorization server. Zero values
// are replaced with defaults by NewServer.
type ServerConfig struct {
	Issuer          string
	AuthCodeTTL     time.Duration // default 10m
	AuthRequestTTL  time.Duration // default 10m (PAR)
	DeviceCodeTTL   time.Duration // default 10m
	DeviceInterval  int           // default 5s polling interval
	AccessTokenTTL  time.Duration // default 1h
	RefreshTokenTTL time.Duration // default 720h
	VerificationURI string        // where users enter the device user code
	SupportedScopes []string      // advertised in metadata; repo remains authoritative
}

// Server is the OAuth 2.1 authorization server core. It is stateless between
// requests; all state lives behind the host-supplied OAuthRepository.
type Server struct {
	repo   domain.OAuthRepository
	cfg    ServerConfig
	grants map[string]GrantHandler
	issue  TokenIssuer
	now    func() time.Time
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithGrantType enables a grant handler built by the given constructor. The
// registry is fixed once NewServer returns.
func WithGrantType(build func(*Server) GrantHandler) ServerOption {
	return func(s *Server) {
		h := build(s)
		s.grants[h.GrantType()] = h
	}
}

// WithTokenIssuer replaces the default opaque access token issuer.
func WithTokenIssuer(issue TokenIssuer) ServerOption {
	return func(s *Server) { s.issue = issue }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// NewServer creates an authorization server over the given repository. Grant
// types are enabled with WithGrantType; a server with no explicit grants gets
// the full default set.
func NewServer(repo domain.OAuthRepository, cfg ServerConfig, opts ...ServerOption) *Server {
	if cfg.AuthCodeTTL == 0 {
		cfg.AuthCodeTTL = 10 * time.Minute
	}
	if cfg.AuthRequestTTL == 0 {
		cfg.AuthRequestTTL = 10 * time.Minute
	}
	if cfg.DeviceCodeTTL == 0 {
		cfg.DeviceCodeTTL = 10 * time.Minute
	}
	if cfg.DeviceInterval == 0 {
		cfg.DeviceInterval = 5
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 720 * time.Hour
	}

	s := &Server{
		repo:   repo,
		cfg:    cfg,
		grants: make(map[string]GrantHandler),
		now:    time.Now,
	}
	s.issue = s.defaultTokenIssuer

	for _, opt := range opts {
		opt(s)
	}

	if len(s.grants) == 0 {
		for _, h := range []GrantHandler{
			&AuthorizationCodeGrant{server: s},
			&ClientCredentialsGrant{server: s},
			&DeviceCodeGrant{server: s},
			&RefreshTokenGrant{server: s},
		} {
			s.grants[h.GrantType()] = h
		}
	}

	return s
}

// TokenRequest carries the parsed form parameters of a token endpoint call.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Scope        string

	// authorization_code
	Code         string
	RedirectURI  string
	CodeVerifier string

	// device_code
	DeviceCode string

	// refresh_token
	RefreshToken string

	// Populated during validation so Issue does not reload.
	client     *domain.Client
	authCode   *domain.AuthCode
	deviceAuth *domain.DeviceAuth
	refresh    *domain.RefreshToken
}

// HandleTokenRequest dispatches a token request to the enabled grant handler.
// Every returned error is a *serrors.OAuth2Error.
func (s *Server) HandleTokenRequest(ctx context.Context, req *TokenRequest) (*domain.TokenResponse, error) {
	handler, ok := s.grants[req.GrantType]
	if !ok {
		return nil, serrors.NewUnsupportedGrantType()
	}

	if err := handler.Validate(ctx, req); err != nil {
		return nil, err
	}

	resp, err := handler.Issue(ctx, req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// resolveClient looks up a client and checks it is usable. A loader failure
// maps to invalid_request; unknown, inactive and revoked clients collapse to
// invalid_client with distinguishable messages.
func (s *Server) resolveClient(ctx context.Context, clientID string) (*domain.Client, error) {
	if clientID == "" {
		return nil, serrors.NewInvalidRequest("client_id is required")
	}

	cli, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if err == serrors.ErrClientNotFound {
			return nil, serrors.NewInvalidClient("unknown client")
		}
		log.Error().Err(err).Str("client_id", clientID).Msg("client lookup failed")
		return nil, serrors.NewInvalidRequest("client lookup failed")
	}

	if !cli.Active {
		return nil, serrors.NewInvalidClient("client is disabled")
	}
	if cli.Revoked {
		return nil, serrors.NewInvalidClient("client is revoked")
	}

	return cli, nil
}

// authenticateClient resolves a client and verifies its secret with a
// constant-time comparison. Public clients pass when no secret is presented
// and requireSecret is false.
func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret string, requireSecret bool) (*domain.Client, error) {
	cli, err := s.resolveClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if cli.Public() && !requireSecret && clientSecret == "" {
		return cli, nil
	}

	if requireSecret && clientSecret == "" {
		return nil, serrors.NewInvalidRequest("client_secret is required")
	}

	if subtle.ConstantTimeCompare([]byte(cli.Secret), []byte(clientSecret)) != 1 {
		return nil, serrors.NewInvalidClient("invalid client credentials")
	}

	return cli, nil
}

// ValidateClient reports whether the client exists, is usable, and presented
// the correct secret.
func (s *Server) ValidateClient(ctx context.Context, clientID, clientSecret string) bool {
	_, err := s.authenticateClient(ctx, clientID, clientSecret, clientSecret != "")
	return err == nil
}

// ResolveScopes validates the requested scopes against the server's known
// scope set and intersects them with the client's granted set. Scopes unknown
// to the server yield invalid_scope; scopes the server knows but the client
// was not granted are silently dropped. An empty request grants the client's
// full scope set.
func (s *Server) ResolveScopes(ctx context.Context, cli *domain.Client, requested []string) ([]string, error) {
	if len(requested) == 0 {
		granted := make([]string, len(cli.Scopes))
		copy(granted, cli.Scopes)
		return granted, nil
	}

	known, err := s.repo.ListScopes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scope list load failed")
		return nil, serrors.NewServerError("failed to load scopes")
	}

	knownSet := make(map[string]struct{}, len(known))
	for _, sc := range known {
		knownSet[sc] = struct{}{}
	}

	var unknown []string
	for _, sc := range requested {
		if _, ok := knownSet[sc]; !ok {
			unknown = append(unknown, sc)
		}
	}
	if len(unknown) == 1 {
		return nil, serrors.NewInvalidScope(fmt.Sprintf("unknown scope: %s", unknown[0]))
	}
	if len(unknown) > 1 {
		return nil, serrors.NewInvalidScope(fmt.Sprintf("unknown scopes: %s", strings.Join(unknown, ", ")))
	}

	clientSet := make(map[string]struct{}, len(cli.Scopes))
	for _, sc := range cli.Scopes {
		clientSet[sc] = struct{}{}
	}

	granted := make([]string, 0, len(requested))
	for _, sc := range requested {
		if _, ok := clientSet[sc]; ok {
			granted = append(granted, sc)
		}
	}

	return granted, nil
}

// issueTokens mints an access token (and, when withRefresh is set, a refresh
// token persisted through the repository) for the client.
func (s *Server) issueTokens(ctx context.Context, cli *domain.Client, scopes []string, userID string, withRefresh bool) (*domain.TokenResponse, error) {
	accessToken, err := s.issue(ctx, cli, scopes, userID)
	if err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("access token issuance failed")
		return nil, serrors.NewServerError("failed to issue access token")
	}

	resp := &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTokenTTL.Seconds()),
		Scope:       strings.Join(scopes, " "),
	}

	if withRefresh {
		refresh := &domain.RefreshToken{
			Token:     uuid.NewString(),
			ClientID:  cli.ID,
			UserID:    userID,
			Scopes:    scopes,
			ExpiresAt: s.now().Add(s.cfg.RefreshTokenTTL),
			CreatedAt: s.now(),
		}
		if err := s.repo.SaveRefreshToken(ctx, refresh); err != nil {
			log.Error().Err(err).Str("client_id", cli.ID).Msg("refresh token store failed")
			return nil, serrors.NewServerError("failed to store refresh token")
		}
		resp.RefreshToken = refresh.Token
	}

	return resp, nil
}

func (s *Server) defaultTokenIssuer(_ context.Context, _ *domain.Client, _ []string, _ string) (string, error) {
	return randomToken(32)
}

// randomToken returns n bytes of entropy, base64url encoded without padding.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SplitScope splits a space-delimited scope parameter, dropping empty parts.
func SplitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
