// Package echoapi exposes the authorization server over HTTP using echo.
package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/oauth"
	"go.pilab.hu/oauth/discovery"
	serrors "go.pilab.hu/oauth/errors"
)

// OAuth2API holds the HTTP handlers for the authorization server endpoints.
type OAuth2API struct {
	server *oauth.Server
}

// NewOAuth2API creates the API over an authorization server.
func NewOAuth2API(server *oauth.Server) *OAuth2API {
	return &OAuth2API{server: server}
}

// RegisterRoutes registers the OAuth2 routes.
func (api *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", api.AuthorizeHandler)
	e.POST("/oauth2/token", api.TokenHandler)
	e.POST("/oauth2/par", api.PushedAuthorizationHandler)
	e.POST("/oauth2/device/code", api.DeviceAuthorizationHandler)
	e.POST("/oauth2/device/verify", api.DeviceVerificationHandler)

	e.GET(discovery.WellKnownPath, api.MetadataHandler)
}

// noStore sets the response caching headers every token-bearing response
// must carry.
func noStore(c echo.Context) {
	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
}

// errorJSON writes an OAuth error with its mapped HTTP status.
func errorJSON(c echo.Context, err error) error {
	noStore(c)
	oauthErr := serrors.AsOAuth2Error(err)
	return c.JSON(oauthErr.HTTPStatus(), oauthErr)
}

// AuthorizeHandler handles authorization requests: validates the client,
// redirect URI, response type, scope and PKCE parameters, then redirects the
// user agent back with an authorization code. Validation failures after the
// redirect URI check come back as error redirects; earlier ones as JSON.
func (api *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := &oauth.AuthorizationRequest{
		ResponseType:        c.QueryParam("response_type"),
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
		RequestURI:          c.QueryParam("request_uri"),
		// The host authenticates the resource owner before this endpoint;
		// a reverse proxy or session middleware injects the subject header.
		UserID: c.Request().Header.Get("X-Subject-ID"),
	}

	result, err := api.server.HandleAuthorizationRequest(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}

	noStore(c)
	return c.Redirect(http.StatusFound, result.RedirectURL)
}

// TokenHandler handles token requests. The grant_type form value selects the
// enabled grant handler; errors are serialized per the OAuth taxonomy and
// never include verifiers, secrets or raw tokens.
func (api *OAuth2API) TokenHandler(c echo.Context) error {
	req := &oauth.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
		Scope:        c.FormValue("scope"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		DeviceCode:   c.FormValue("device_code"),
		RefreshToken: c.FormValue("refresh_token"),
	}

	resp, err := api.server.HandleTokenRequest(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}

	noStore(c)
	return c.JSON(http.StatusOK, resp)
}

// PushedAuthorizationHandler stores an authorization request server-side and
// returns a short-lived request_uri (RFC 9126).
func (api *OAuth2API) PushedAuthorizationHandler(c echo.Context) error {
	req := &oauth.AuthorizationRequest{
		ResponseType:        c.FormValue("response_type"),
		ClientID:            c.FormValue("client_id"),
		RedirectURI:         c.FormValue("redirect_uri"),
		Scope:               c.FormValue("scope"),
		State:               c.FormValue("state"),
		CodeChallenge:       c.FormValue("code_challenge"),
		CodeChallengeMethod: c.FormValue("code_challenge_method"),
		RequestURI:          c.FormValue("request_uri"),
	}

	resp, err := api.server.HandlePushedAuthorizationRequest(c.Request().Context(), req, c.FormValue("client_secret"))
	if err != nil {
		return errorJSON(c, err)
	}

	noStore(c)
	return c.JSON(http.StatusCreated, resp)
}

// DeviceAuthorizationHandler starts a device authorization flow (RFC 8628).
func (api *OAuth2API) DeviceAuthorizationHandler(c echo.Context) error {
	resp, err := api.server.HandleDeviceAuthorizationRequest(
		c.Request().Context(),
		c.FormValue("client_id"),
		c.FormValue("scope"),
	)
	if err != nil {
		return errorJSON(c, err)
	}

	noStore(c)
	return c.JSON(http.StatusOK, resp)
}

// DeviceVerificationHandler records the resource owner's decision for a user
// code. The consent UI itself is the host's concern; this endpoint is the
// program interface behind it.
func (api *OAuth2API) DeviceVerificationHandler(c echo.Context) error {
	userCode := c.FormValue("user_code")
	userID := c.Request().Header.Get("X-Subject-ID")

	var err error
	if c.FormValue("approve") == "true" {
		err = api.server.ApproveDeviceAuth(c.Request().Context(), userCode, userID)
	} else {
		err = api.server.DenyDeviceAuth(c.Request().Context(), userCode)
	}
	if err != nil {
		log.Debug().Err(err).Msg("device verification rejected")
		return errorJSON(c, err)
	}

	noStore(c)
	return c.NoContent(http.StatusNoContent)
}

// MetadataHandler serves the authorization server metadata document
// (RFC 8414).
func (api *OAuth2API) MetadataHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, api.server.Metadata())
}
