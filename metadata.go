package oauth

import (
	"strings"

	"go.pilab.hu/oauth/discovery"
)

// Metadata builds the authorization server metadata document advertised at
// the well-known endpoint, derived from the enabled grant registry.
func (s *Server) Metadata() *discovery.Metadata {
	issuer := strings.TrimSuffix(s.cfg.Issuer, "/")

	grantTypes := make([]string, 0, len(s.grants))
	for gt := range s.grants {
		grantTypes = append(grantTypes, gt)
	}

	doc := &discovery.Metadata{
		Issuer:                             issuer,
		AuthorizationEndpoint:              issuer + "/oauth2/authorize",
		TokenEndpoint:                      issuer + "/oauth2/token",
		PushedAuthorizationRequestEndpoint: issuer + "/oauth2/par",
		ScopesSupported:                    s.cfg.SupportedScopes,
		ResponseTypesSupported:             []string{"code"},
		GrantTypesSupported:                grantTypes,
		CodeChallengeMethodsSupported:      []string{CodeChallengeMethodS256, CodeChallengeMethodPlain},
		TokenEndpointAuthMethodsSupported:  []string{"client_secret_post", "none"},
	}
	if _, ok := s.grants[GrantTypeDeviceCode]; ok {
		doc.DeviceAuthorizationEndpoint = issuer + "/oauth2/device/code"
	}

	return doc
}
