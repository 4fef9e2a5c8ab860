// Package client implements the OAuth 2.1 client side: authorization URL
// building with PKCE and CSRF state, code exchange, refresh, client
// credentials and device authorization polling. Tokens are persisted through
// a tokenstore.Store; HTTP calls run through an interceptor pipeline.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.pilab.hu/oauth"
	"go.pilab.hu/oauth/client/interceptor"
	"go.pilab.hu/oauth/discovery"
	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
	"go.pilab.hu/oauth/tokenstore"
)

// Config identifies the client application against the authorization server.
// RedirectURI is the one statically registered value; it is the only redirect
// URI ever sent, never one derived from request data.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURI  string
	Scopes       []string
}

// Client drives OAuth flows against one authorization server. A client
// instance drives at most one authorization session at a time; independent
// instances may run concurrently against the same server.
type Client struct {
	cfg       Config
	discovery *discovery.Client
	store     tokenstore.Store
	pipeline  *interceptor.Pipeline

	mu      sync.Mutex
	session *authSession
}

// authSession binds the state and code verifier generated at authorization
// URL build time to the callback that redeems them.
type authSession struct {
	state    string
	verifier string
}

// Option configures a Client.
type Option func(*Client)

// WithTokenStore replaces the default in-memory token store.
func WithTokenStore(store tokenstore.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithPipeline replaces the default interceptor pipeline.
func WithPipeline(p *interceptor.Pipeline) Option {
	return func(c *Client) { c.pipeline = p }
}

// WithDiscovery replaces the default discovery client, e.g. to share a
// metadata cache between clients.
func WithDiscovery(d *discovery.Client) Option {
	return func(c *Client) { c.discovery = d }
}

// WithHTTPClient sets the HTTP client backing both discovery and the token
// pipeline. Ignored when WithPipeline/WithDiscovery are also given.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.discovery = discovery.NewClient(httpClient)
		c.pipeline = interceptor.New(httpClient)
	}
}

// New creates an OAuth client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.discovery == nil {
		c.discovery = discovery.NewClient(nil)
	}
	if c.pipeline == nil {
		c.pipeline = interceptor.New(nil)
	}
	if c.store == nil {
		c.store = tokenstore.NewMemoryStore()
	}

	return c, nil
}

// AuthorizationURL builds the authorization endpoint URL for a new session,
// always attaching a fresh PKCE S256 challenge and a random CSRF state. The
// verifier and state are held until HandleCallback consumes them.
func (c *Client) AuthorizationURL(ctx context.Context) (string, error) {
	if c.cfg.RedirectURI == "" {
		return "", fmt.Errorf("redirect URI is required for the authorization code flow")
	}

	meta, err := c.discovery.Discover(ctx, c.cfg.Issuer)
	if err != nil {
		return "", err
	}

	verifier, err := oauth.GenerateCodeVerifier(64)
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	// PKCE is attached even when code_challenge_methods_supported is absent
	// from the metadata; omitting it would enable a downgrade attack.
	challenge, err := oauth.GenerateCodeChallenge(verifier, oauth.CodeChallengeMethodS256)
	if err != nil {
		return "", err
	}
	state, err := randomState()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.session = &authSession{state: state, verifier: verifier}
	c.mu.Unlock()

	authURL, err := url.Parse(meta.AuthorizationEndpoint)
	if err != nil {
		return "", &discovery.Error{Issuer: c.cfg.Issuer, Err: fmt.Errorf("invalid authorization endpoint: %w", err)}
	}
	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	if len(c.cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", oauth.CodeChallengeMethodS256)
	authURL.RawQuery = q.Encode()

	return authURL.String(), nil
}

// HandleCallback validates the authorization callback URL, exchanges the code
// using the verifier bound at AuthorizationURL time, and persists the
// resulting tokens.
func (c *Client) HandleCallback(ctx context.Context, callbackURL string) (*tokenstore.Tokens, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	q := parsed.Query()

	if errCode := q.Get("error"); errCode != "" {
		return nil, &serrors.OAuth2Error{
			Code:        errCode,
			Description: q.Get("error_description"),
			State:       q.Get("state"),
		}
	}

	c.mu.Lock()
	session := c.session
	c.session = nil // single-use regardless of outcome
	c.mu.Unlock()

	if session == nil {
		return nil, ErrNoSession
	}
	if got := q.Get("state"); got != session.state {
		return nil, &StateMismatchError{Expected: session.state, Got: got}
	}

	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("callback URL is missing the authorization code")
	}

	form := url.Values{}
	form.Set("grant_type", oauth.GrantTypeAuthorizationCode)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	form.Set("code_verifier", session.verifier)

	return c.requestAndStoreTokens(ctx, form)
}

// ClientCredentials obtains an access token via the client credentials grant
// and persists it. Scopes default to the configured set.
func (c *Client) ClientCredentials(ctx context.Context, scopes ...string) (*tokenstore.Tokens, error) {
	if c.cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials grant requires a client secret")
	}
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}

	form := url.Values{}
	form.Set("grant_type", oauth.GrantTypeClientCredentials)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	return c.requestAndStoreTokens(ctx, form)
}

// Refresh rotates the stored refresh token for a fresh token pair.
func (c *Client) Refresh(ctx context.Context) (*tokenstore.Tokens, error) {
	stored, err := c.store.Get(ctx, c.cfg.ClientID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, ErrNoTokens
	}

	form := url.Values{}
	form.Set("grant_type", oauth.GrantTypeRefreshToken)
	form.Set("refresh_token", stored.RefreshToken)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	return c.requestAndStoreTokens(ctx, form)
}

// Token returns the stored tokens, refreshing first when the access token has
// expired and a refresh token is available.
func (c *Client) Token(ctx context.Context) (*tokenstore.Tokens, error) {
	stored, err := c.store.Get(ctx, c.cfg.ClientID)
	if err != nil {
		return nil, err
	}
	if stored.Valid() {
		return stored, nil
	}
	if stored != nil && stored.RefreshToken != "" {
		return c.Refresh(ctx)
	}
	return nil, ErrNoTokens
}

// Logout drops the stored tokens for this client.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx, c.cfg.ClientID)
}

// requestAndStoreTokens posts a token request, converts the response, and
// persists the tokens through the token store.
func (c *Client) requestAndStoreTokens(ctx context.Context, form url.Values) (*tokenstore.Tokens, error) {
	resp, err := c.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	tokens := &tokenstore.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scopes:       oauth.SplitScope(resp.Scope),
	}
	if err := c.store.Set(ctx, c.cfg.ClientID, tokens); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}

	return tokens, nil
}

// tokenRequest posts a form to the token endpoint through the interceptor
// pipeline. Protocol failures come back as *serrors.OAuth2Error, transport
// failures as *NetworkError.
func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*domain.TokenResponse, error) {
	meta, err := c.discovery.Discover(ctx, c.cfg.Issuer)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.pipeline.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: meta.TokenEndpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var oauthErr serrors.OAuth2Error
		if err := json.NewDecoder(resp.Body).Decode(&oauthErr); err != nil || oauthErr.Code == "" {
			return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
		}
		return nil, &oauthErr
	}

	var tokenResp domain.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResp, nil
}

func randomState() (string, error) {
	state, err := oauth.GenerateCodeVerifier(oauth.MinCodeVerifierLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return state, nil
}
