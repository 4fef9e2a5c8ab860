package oauth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "go.pilab.hu/oauth/errors"
)

func validAuthRequest(t *testing.T) (*AuthorizationRequest, string) {
	t.Helper()
	verifier, err := GenerateCodeVerifier(43)
	require.NoError(t, err)
	challenge, err := GenerateCodeChallenge(verifier, CodeChallengeMethodS256)
	require.NoError(t, err)

	return &AuthorizationRequest{
		ResponseType:        "code",
		ClientID:            "c1",
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "read",
		State:               "xyz",
		CodeChallenge:       challenge,
		CodeChallengeMethod: CodeChallengeMethodS256,
		UserID:              "user-1",
	}, verifier
}

func redirectQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query()
}

func TestHandleAuthorizationRequest_Success(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)

	result, err := srv.HandleAuthorizationRequest(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, strings.HasPrefix(result.RedirectURL, "https://app.example.com/callback?"))
	q := redirectQuery(t, result.RedirectURL)
	assert.NotEmpty(t, q.Get("code"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Empty(t, q.Get("error"))
}

func TestHandleAuthorizationRequest_UnregisteredRedirectURI(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	req.RedirectURI = "https://evil.example.com/callback"

	// No redirect may be issued toward an unregistered URI.
	_, err := srv.HandleAuthorizationRequest(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.AsOAuth2Error(err).Code)
}

func TestHandleAuthorizationRequest_RedirectURIPrefixRejected(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	req.RedirectURI = "https://app.example.com/callback/extra"

	_, err := srv.HandleAuthorizationRequest(context.Background(), req)
	require.Error(t, err)
}

func TestHandleAuthorizationRequest_MissingPKCERedirectsError(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	req.CodeChallenge = ""

	result, err := srv.HandleAuthorizationRequest(context.Background(), req)
	require.NoError(t, err)

	q := redirectQuery(t, result.RedirectURL)
	assert.Equal(t, serrors.InvalidRequest, q.Get("error"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Empty(t, q.Get("code"))
}

func TestHandleAuthorizationRequest_BadResponseTypeRedirectsError(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	req.ResponseType = "token"

	result, err := srv.HandleAuthorizationRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, serrors.InvalidRequest, redirectQuery(t, result.RedirectURL).Get("error"))
}

func TestHandleAuthorizationRequest_UnknownScopeRedirectsError(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	req.Scope = "bogus"

	result, err := srv.HandleAuthorizationRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, serrors.InvalidScope, redirectQuery(t, result.RedirectURL).Get("error"))
}

func TestHandlePushedAuthorizationRequest_Success(t *testing.T) {
	srv, store, clock := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)

	// ExpiresIn is measured against the server clock, so a skewed clock
	// still yields the full request TTL.
	*clock = clock.Add(3 * time.Minute)

	resp, err := srv.HandlePushedAuthorizationRequest(context.Background(), req, "s1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.RequestURI, RequestURIPrefix))
	assert.Equal(t, int64(600), resp.ExpiresIn)
}

func TestHandlePushedAuthorizationRequest_RejectsNestedRequestURI(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	req.RequestURI = RequestURIPrefix + "abc"

	_, err := srv.HandlePushedAuthorizationRequest(context.Background(), req, "s1")
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.AsOAuth2Error(err).Code)
}

func TestAuthorizationViaPushedRequest(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	ctx := context.Background()

	pushed, err := srv.HandlePushedAuthorizationRequest(ctx, req, "s1")
	require.NoError(t, err)

	result, err := srv.HandleAuthorizationRequest(ctx, &AuthorizationRequest{
		ClientID:   "c1",
		RequestURI: pushed.RequestURI,
		UserID:     "user-1",
	})
	require.NoError(t, err)

	q := redirectQuery(t, result.RedirectURL)
	assert.NotEmpty(t, q.Get("code"))
	assert.Equal(t, "xyz", q.Get("state"))
}

func TestPushedRequestIsSingleUse(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	ctx := context.Background()

	pushed, err := srv.HandlePushedAuthorizationRequest(ctx, req, "s1")
	require.NoError(t, err)

	authReq := &AuthorizationRequest{ClientID: "c1", RequestURI: pushed.RequestURI, UserID: "user-1"}
	_, err = srv.HandleAuthorizationRequest(ctx, authReq)
	require.NoError(t, err)

	_, err = srv.HandleAuthorizationRequest(ctx, authReq)
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.AsOAuth2Error(err).Code)
}

func TestPushedRequestExpiry(t *testing.T) {
	srv, store, clock := newTestServer(t)
	addConfidentialClient(store)
	req, _ := validAuthRequest(t)
	ctx := context.Background()

	pushed, err := srv.HandlePushedAuthorizationRequest(ctx, req, "s1")
	require.NoError(t, err)

	*clock = clock.Add(11 * time.Minute) // past the default request TTL

	_, err = srv.HandleAuthorizationRequest(ctx, &AuthorizationRequest{
		ClientID:   "c1",
		RequestURI: pushed.RequestURI,
		UserID:     "user-1",
	})
	require.Error(t, err)
}

func TestPushedRequestClientMismatch(t *testing.T) {
	srv, store, _ := newTestServer(t)
	addConfidentialClient(store)
	addPublicClient(store)
	req, _ := validAuthRequest(t)
	ctx := context.Background()

	pushed, err := srv.HandlePushedAuthorizationRequest(ctx, req, "s1")
	require.NoError(t, err)

	_, err = srv.HandleAuthorizationRequest(ctx, &AuthorizationRequest{
		ClientID:   "pub1",
		RequestURI: pushed.RequestURI,
		UserID:     "user-1",
	})
	require.Error(t, err)
}
