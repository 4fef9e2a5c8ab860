package echoapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/oauth"
	"go.pilab.hu/oauth/discovery"
	"go.pilab.hu/oauth/domain"
	serrors "go.pilab.hu/oauth/errors"
	"go.pilab.hu/oauth/memstore"
)

func newTestAPI(t *testing.T) *echo.Echo {
	t.Helper()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	store.SetScopes([]string{"read", "write"})
	store.AddClient(&domain.Client{
		ID:           "c1",
		Secret:       "s1",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scopes:       []string{"read", "write"},
		Active:       true,
		CreatedAt:    time.Now(),
	})

	server := oauth.NewServer(store, oauth.ServerConfig{
		Issuer:          "https://auth.example.com",
		VerificationURI: "https://auth.example.com/device",
	})

	e := echo.New()
	NewOAuth2API(server).RegisterRoutes(e)
	return e
}

func postForm(e *echo.Echo, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *serrors.OAuth2Error {
	t.Helper()
	var oauthErr serrors.OAuth2Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &oauthErr))
	return &oauthErr
}

func TestTokenEndpoint_ClientCredentials(t *testing.T) {
	e := newTestAPI(t)

	rec := postForm(e, "/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"c1"},
		"client_secret": {"s1"},
		"scope":         {"read"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	var resp domain.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "read", resp.Scope)
}

func TestTokenEndpoint_InvalidClientIs401(t *testing.T) {
	e := newTestAPI(t)

	rec := postForm(e, "/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"c1"},
		"client_secret": {"wrong"},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, serrors.InvalidClient, decodeError(t, rec).Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestTokenEndpoint_UnsupportedGrantIs400(t *testing.T) {
	e := newTestAPI(t)

	rec := postForm(e, "/oauth2/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {"c1"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, serrors.UnsupportedGrantType, decodeError(t, rec).Code)
}

func TestAuthorizeEndpoint_IssuesCodeRedirect(t *testing.T) {
	e := newTestAPI(t)

	verifier, err := oauth.GenerateCodeVerifier(43)
	require.NoError(t, err)
	challenge, err := oauth.GenerateCodeChallenge(verifier, oauth.CodeChallengeMethodS256)
	require.NoError(t, err)

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"c1"},
		"redirect_uri":          {"https://app.example.com/callback"},
		"scope":                 {"read"},
		"state":                 {"xyz"},
		"code_challenge":        {challenge},
		"code_challenge_method": {oauth.CodeChallengeMethodS256},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	req.Header.Set("X-Subject-ID", "user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	code := location.Query().Get("code")
	assert.NotEmpty(t, code)
	assert.Equal(t, "xyz", location.Query().Get("state"))

	// The issued code is exchangeable at the token endpoint.
	tokenRec := postForm(e, "/oauth2/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"c1"},
		"client_secret": {"s1"},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/callback"},
		"code_verifier": {verifier},
	})
	require.Equal(t, http.StatusOK, tokenRec.Code, tokenRec.Body.String())
}

func TestAuthorizeEndpoint_UnregisteredRedirectIsJSONError(t *testing.T) {
	e := newTestAPI(t)

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {"c1"},
		"redirect_uri":  {"https://evil.example.com/cb"},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Equal(t, serrors.InvalidRequest, decodeError(t, rec).Code)
}

func TestPAREndpoint(t *testing.T) {
	e := newTestAPI(t)

	verifier, err := oauth.GenerateCodeVerifier(43)
	require.NoError(t, err)
	challenge, err := oauth.GenerateCodeChallenge(verifier, oauth.CodeChallengeMethodS256)
	require.NoError(t, err)

	rec := postForm(e, "/oauth2/par", url.Values{
		"response_type":         {"code"},
		"client_id":             {"c1"},
		"client_secret":         {"s1"},
		"redirect_uri":          {"https://app.example.com/callback"},
		"scope":                 {"read"},
		"state":                 {"xyz"},
		"code_challenge":        {challenge},
		"code_challenge_method": {oauth.CodeChallengeMethodS256},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp domain.PushedAuthorizationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.RequestURI, oauth.RequestURIPrefix))
	assert.Greater(t, resp.ExpiresIn, int64(0))

	// The request_uri drives the authorization endpoint.
	q := url.Values{
		"client_id":   {"c1"},
		"request_uri": {resp.RequestURI},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	req.Header.Set("X-Subject-ID", "user-1")
	authRec := httptest.NewRecorder()
	e.ServeHTTP(authRec, req)

	require.Equal(t, http.StatusFound, authRec.Code, authRec.Body.String())
	location, err := url.Parse(authRec.Header().Get("Location"))
	require.NoError(t, err)
	assert.NotEmpty(t, location.Query().Get("code"))
}

func TestDeviceEndpoints_FullFlow(t *testing.T) {
	e := newTestAPI(t)

	rec := postForm(e, "/oauth2/device/code", url.Values{
		"client_id": {"c1"},
		"scope":     {"read"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var auth domain.DeviceAuthorizationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.NotEmpty(t, auth.DeviceCode)
	assert.NotEmpty(t, auth.UserCode)

	// Pending before the user decides.
	pollForm := url.Values{
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":     {"c1"},
		"client_secret": {"s1"},
		"device_code":   {auth.DeviceCode},
	}
	pollRec := postForm(e, "/oauth2/token", pollForm)
	require.Equal(t, http.StatusBadRequest, pollRec.Code)
	assert.Equal(t, serrors.AuthorizationPending, decodeError(t, pollRec).Code)

	// Approve through the verification endpoint.
	verifyReq := httptest.NewRequest(http.MethodPost, "/oauth2/device/verify",
		strings.NewReader(url.Values{"user_code": {auth.UserCode}, "approve": {"true"}}.Encode()))
	verifyReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	verifyReq.Header.Set("X-Subject-ID", "user-1")
	verifyRec := httptest.NewRecorder()
	e.ServeHTTP(verifyRec, verifyReq)
	require.Equal(t, http.StatusNoContent, verifyRec.Code, verifyRec.Body.String())

	// Polling again inside the interval is rate limited even after approval.
	fastRec := postForm(e, "/oauth2/token", pollForm)
	require.Equal(t, http.StatusBadRequest, fastRec.Code)
	assert.Equal(t, serrors.SlowDown, decodeError(t, fastRec).Code)
}

func TestMetadataEndpoint(t *testing.T) {
	e := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, discovery.WellKnownPath, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var md discovery.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &md))
	assert.Equal(t, "https://auth.example.com", md.Issuer)
	assert.Equal(t, "https://auth.example.com/oauth2/token", md.TokenEndpoint)
	assert.Contains(t, md.GrantTypesSupported, "urn:ietf:params:oauth:grant-type:device_code")
}
