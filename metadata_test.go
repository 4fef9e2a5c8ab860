package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata(t *testing.T) {
	srv, _, _ := newTestServer(t)

	md := srv.Metadata()
	assert.Equal(t, "https://auth.example.com", md.Issuer)
	assert.Equal(t, "https://auth.example.com/oauth2/authorize", md.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/token", md.TokenEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/par", md.PushedAuthorizationRequestEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/device/code", md.DeviceAuthorizationEndpoint)

	assert.ElementsMatch(t, []string{
		GrantTypeAuthorizationCode,
		GrantTypeClientCredentials,
		GrantTypeDeviceCode,
		GrantTypeRefreshToken,
	}, md.GrantTypesSupported)
	assert.Equal(t, []string{"code"}, md.ResponseTypesSupported)
	assert.Contains(t, md.CodeChallengeMethodsSupported, CodeChallengeMethodS256)
}

func TestMetadata_DeviceEndpointOnlyWhenEnabled(t *testing.T) {
	srv, _, _ := newTestServer(t, WithGrantType(func(s *Server) GrantHandler {
		return NewClientCredentialsGrant(s)
	}))

	md := srv.Metadata()
	assert.Empty(t, md.DeviceAuthorizationEndpoint)
	assert.Equal(t, []string{GrantTypeClientCredentials}, md.GrantTypesSupported)
}

func TestMetadata_TrailingSlashTrimmed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.cfg.Issuer = "https://auth.example.com/"
	md := srv.Metadata()
	assert.Equal(t, "https://auth.example.com", md.Issuer)
}
